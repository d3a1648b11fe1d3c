package importer

import (
	"fmt"

	"github.com/concept-importer/backend/internal/models"
)

// BuildLabel describes an invocation as "Adding to <dictionary>--<n>
// concepts from <source>".
func BuildLabel(req Request) string {
	dictionary := models.PathSegment(req.DictionaryURL, models.ContainerNameSegment)

	source := ""
	if len(req.Concepts) > 0 {
		source = models.PathSegment(req.Concepts[0].ConceptURL(), models.ContainerNameSegment)
	}

	noun := "concepts"
	if len(req.Concepts) == 1 {
		noun = "concept"
	}

	detail := fmt.Sprintf("%d %s", len(req.Concepts), noun)
	if source != "" {
		detail += " from " + source
	}
	return models.BuildLabel("Adding to "+dictionary, detail)
}
