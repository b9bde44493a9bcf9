package memory

import (
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
)

// Memory is a process local Repository for development and tests. All state is
// lost on exit, so it provides no restart recovery.
type Memory struct {
	actionRecord *actionRecordRepository
	modlog       *modlogRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		actionRecord: newActionRecordRepository(),
		modlog:       newModlogRepository(),
	}
}

func (m *Memory) ActionRecord() interfaces.ActionRecordRepository {
	return m.actionRecord
}

func (m *Memory) Modlog() interfaces.ModlogRepository {
	return m.modlog
}

func (m *Memory) Close() error {
	return nil
}
