// Package notification projects tracker state into the views a user reads:
// the progress overview and the per-operation detail summary.
package notification

import (
	"fmt"
	"time"

	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/dustin/go-humanize"
)

// SuccessfulMessage is the completed subheader when no payload survived.
const SuccessfulMessage = "Successful"

// EmptyMessage is shown when no bucket has an entry.
const EmptyMessage = "Your actions in this session will appear here"

// DateTimeLayout renders a card's start time.
const DateTimeLayout = "02 Jan 2006 15:04"

// Card is one entry of the progress overview.
type Card struct {
	Index          int    `json:"index"`
	OperationID    string `json:"operationId,omitempty"`
	Header         string `json:"header"`
	Subheader      string `json:"subheader"`
	DictionaryName string `json:"dictionaryName,omitempty"`
	DictionaryURL  string `json:"dictionaryUrl,omitempty"`
	DateTime       string `json:"dateTime,omitempty"`
	StartedAt      string `json:"startedAt,omitempty"`
	TimeSince      string `json:"timeSince,omitempty"`
}

// Progress is the overview split into its three buckets, each most recent
// first.
type Progress struct {
	InProgress []Card `json:"inProgress"`
	Failed     []Card `json:"failed"`
	Completed  []Card `json:"completed"`
}

// Total counts the cards across all buckets.
func (p Progress) Total() int {
	return len(p.InProgress) + len(p.Failed) + len(p.Completed)
}

// Message is the placeholder for an empty overview, or "" otherwise.
func (p Progress) Message() string {
	if p.Total() == 0 {
		return EmptyMessage
	}
	return ""
}

// BuildProgress classifies every labelled index of lists into exactly one
// bucket. Indices whose loading flag is unknown are left out.
func BuildProgress(lists tracker.Lists, now time.Time) Progress {
	p := Progress{
		InProgress: []Card{},
		Failed:     []Card{},
		Completed:  []Card{},
	}

	for i := lists.Len() - 1; i >= 0; i-- {
		loading := lists.Loading[i]
		label := lists.Label(i)
		if loading == nil || label == "" {
			continue
		}

		header, detail := models.SplitLabel(label)
		card := Card{Index: i, Header: header}
		if meta := lists.MetaDataAt(i); meta != nil {
			decorate(&card, *meta, now)
		}

		switch {
		case *loading:
			card.Subheader = detail
			p.InProgress = append(p.InProgress, card)
		case lists.ErrorAt(i).IsFailure():
			card.Subheader = string(*lists.ErrorAt(i))
			p.Failed = append(p.Failed, card)
		default:
			card.Subheader = CompletedMessage(lists.ResultAt(i))
			p.Completed = append(p.Completed, card)
		}
	}
	return p
}

func decorate(card *Card, meta models.ImportMetaData, now time.Time) {
	card.OperationID = meta.OperationID
	card.DictionaryURL = meta.Dictionary
	card.DictionaryName = models.PathSegment(meta.Dictionary, models.ContainerNameSegment)
	card.DateTime = meta.DateTime

	started := meta.StartedAt()
	if started.IsZero() {
		return
	}
	card.StartedAt = started.Local().Format(DateTimeLayout)
	card.TimeSince = humanize.RelTime(started, now, "ago", "from now")
}

// CompletedMessage summarizes a success payload for a completed card.
func CompletedMessage(result *models.ImportResult) string {
	if result == nil || len(result.Payload) == 0 {
		return SuccessfulMessage
	}

	total, added := 0, 0
	for _, row := range result.Payload {
		if !row.IsConcept() {
			continue
		}
		total++
		if row.Added {
			added++
		}
	}
	if total == 0 {
		return SuccessfulMessage
	}

	noun := "concepts"
	if total == 1 {
		noun = "concept"
	}
	msg := fmt.Sprintf("Added %d of %d %s", added, total, noun)
	if skipped := total - added; skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", skipped)
	}
	return msg
}
