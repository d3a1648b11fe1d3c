package tracker

import (
	"github.com/concept-importer/backend/internal/kvlog"
	"github.com/concept-importer/backend/internal/models"
)

// Lists is the persisted, index-aligned form of the slot table. Missing
// entries are nil holes and mean "unknown, do not display".
type Lists struct {
	Loading    []*bool
	InProgress []*string
	Errored    []*models.ErrorPayload
	Success    []*models.ImportResult
	MetaData   []*models.ImportMetaData
}

// ReadLists loads all five lists from the log, defaulting each to empty.
func ReadLists(log *kvlog.Log) Lists {
	return Lists{
		Loading:    kvlog.Read(log, LogName, KeyLoadingList, []*bool{}),
		InProgress: kvlog.Read(log, LogName, KeyInProgressList, []*string{}),
		Errored:    kvlog.Read(log, LogName, KeyErroredList, []*models.ErrorPayload{}),
		Success:    kvlog.Read(log, LogName, KeySuccessList, []*models.ImportResult{}),
		MetaData:   kvlog.Read(log, LogName, KeyImportMetaDataList, []*models.ImportMetaData{}),
	}
}

// FromSlots flattens the slot table into aligned lists.
func FromSlots(slots []models.Slot) Lists {
	n := len(slots)
	l := Lists{
		Loading:    make([]*bool, n),
		InProgress: make([]*string, n),
		Errored:    make([]*models.ErrorPayload, n),
		Success:    make([]*models.ImportResult, n),
		MetaData:   make([]*models.ImportMetaData, n),
	}

	for i, s := range slots {
		if s.State == models.SlotEmpty {
			continue
		}
		l.Loading[i] = s.Loading()
		if s.Label != "" {
			label := s.Label
			l.InProgress[i] = &label
		}
		l.Errored[i] = s.Error
		l.Success[i] = s.Result
		l.MetaData[i] = s.MetaData
	}
	return l
}

// Write persists every list.
func (l Lists) Write(log *kvlog.Log) {
	log.Write(LogName, KeyLoadingList, l.Loading)
	log.Write(LogName, KeyInProgressList, l.InProgress)
	log.Write(LogName, KeyErroredList, l.Errored)
	log.Write(LogName, KeySuccessList, l.Success)
	log.Write(LogName, KeyImportMetaDataList, l.MetaData)
}

// Len is the length of the loading list, which drives every projection.
func (l Lists) Len() int {
	return len(l.Loading)
}

// Label returns the label at i, or "" for a hole.
func (l Lists) Label(i int) string {
	if i < len(l.InProgress) && l.InProgress[i] != nil {
		return *l.InProgress[i]
	}
	return ""
}

// ErrorAt returns the error payload at i, or nil.
func (l Lists) ErrorAt(i int) *models.ErrorPayload {
	if i < len(l.Errored) {
		return l.Errored[i]
	}
	return nil
}

// ResultAt returns the success payload at i, or nil.
func (l Lists) ResultAt(i int) *models.ImportResult {
	if i < len(l.Success) {
		return l.Success[i]
	}
	return nil
}

// MetaDataAt returns the import metadata at i, or nil.
func (l Lists) MetaDataAt(i int) *models.ImportMetaData {
	if i < len(l.MetaData) {
		return l.MetaData[i]
	}
	return nil
}

// Slots rebuilds the slot table. A nil loading flag becomes an empty slot.
func (l Lists) Slots() []models.Slot {
	slots := make([]models.Slot, l.Len())
	for i, loading := range l.Loading {
		s := models.Slot{
			Index:    i,
			Label:    l.Label(i),
			State:    models.SlotEmpty,
			MetaData: l.MetaDataAt(i),
		}
		if s.MetaData != nil {
			s.ID = s.MetaData.OperationID
		}

		switch {
		case loading == nil:
		case *loading:
			s.State = models.SlotLoading
		case l.ErrorAt(i).IsFailure():
			s.State = models.SlotFailed
			s.Error = l.ErrorAt(i)
		default:
			s.State = models.SlotSucceeded
			s.Result = l.ResultAt(i)
			if s.Result == nil {
				s.Result = &models.ImportResult{}
			}
		}
		slots[i] = s
	}
	return slots
}
