// Package inmemdb is a threadsafe in-memory database backend used by
// unit tests and local demos.
package inmemdb

import (
	"sync"

	"github.com/telecom-etude/erp/core/mri"
	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

type (
	DB struct {
		user  *userTable
		study *studyTable
		mri   *mriTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	studyTable struct {
		sync.RWMutex
		table map[string]*study.Study // by ID
	}

	mriTable struct {
		sync.RWMutex
		table map[string]*mri.MRI
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:  &userTable{table: make(map[string]*user.User)},
		study: &studyTable{table: make(map[string]*study.Study)},
		mri:   &mriTable{table: make(map[string]*mri.MRI)},
	}
	return db, nil
}
