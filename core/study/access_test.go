package study

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/telecom-etude/erp/core/user"
)

func TestIsAccessible(t *testing.T) {
	cdp := user.User{ID: "cdp-1", FirstName: "Claire", LastName: "Voyant"}
	outsider := user.User{ID: "other-1", FirstName: "Jean", LastName: "Bon"}
	exec := user.User{
		ID:       "exec-1",
		Position: null.StringFrom(string(user.PositionPresident)),
	}
	nonExec := user.User{
		ID:       "info-1",
		Position: null.StringFrom(string(user.PositionInfoPole)),
	}

	open := Study{ID: "s1", Info: StudyInfo{Code: "224AE", Confidential: false}, CDPs: []user.User{cdp}}
	confidential := Study{ID: "s2", Info: StudyInfo{Code: "225XY", Confidential: true}, CDPs: []user.User{cdp}}

	tests := []struct {
		name   string
		viewer user.User
		study  Study
		want   bool
	}{
		{name: "open study, anyone", viewer: outsider, study: open, want: true},
		{name: "open study, cdp", viewer: cdp, study: open, want: true},
		{name: "confidential, outsider", viewer: outsider, study: confidential, want: false},
		{name: "confidential, non-exec position", viewer: nonExec, study: confidential, want: false},
		{name: "confidential, executive board", viewer: exec, study: confidential, want: true},
		{name: "confidential, assigned cdp", viewer: cdp, study: confidential, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAccessible(tt.viewer, tt.study))
		})
	}
}
