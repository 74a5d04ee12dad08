package service

import (
	"encoding/json"
	"testing"

	"note-history-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamValidator_IDRequest(t *testing.T) {
	v := NewParamValidator(true)

	tests := []struct {
		name    string
		params  domain.Params
		want    int64
		wantErr bool
	}{
		{"json number", domain.Params{"id": json.Number("7")}, 7, false},
		{"query string", domain.Params{"id": "12"}, 12, false},
		{"whole float", domain.Params{"id": float64(3)}, 3, false},
		{"fraction", domain.Params{"id": 3.5}, 0, true},
		{"float at 2^63", domain.Params{"id": float64(1 << 63)}, 0, true},
		{"float above int64", domain.Params{"id": 1e19}, 0, true},
		{"largest exact float", domain.Params{"id": float64(1<<53 - 1)}, 1<<53 - 1, false},
		{"zero", domain.Params{"id": json.Number("0")}, 0, true},
		{"negative", domain.Params{"id": "-4"}, 0, true},
		{"word", domain.Params{"id": "abc"}, 0, true},
		{"bool", domain.Params{"id": true}, 0, true},
		{"missing", domain.Params{}, 0, true},
		{"extra key", domain.Params{"id": "1", "title": "t"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := v.IDRequest(OperationGet, tt.params)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "bad request, this endpoint accepts exactly one parameter: 'id'", verr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.ID)
		})
	}
}

func TestParamValidator_LooseStillRequiresKeys(t *testing.T) {
	v := NewParamValidator(false)

	req, err := v.IDRequest(OperationHistory, domain.Params{"id": "1", "page": "2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), req.ID)

	_, err = v.IDRequest(OperationHistory, domain.Params{"page": "2"})
	assert.Error(t, err)

	_, err = v.UpdateRequest(domain.Params{"id": "1", "color": "red"})
	assert.Error(t, err, "update needs title or content even in loose mode")
}

func TestParamValidator_CreateRequiresNonEmptyStrings(t *testing.T) {
	v := NewParamValidator(true)

	_, err := v.CreateRequest(domain.Params{"title": "", "content": "c"})
	assert.Error(t, err)

	_, err = v.CreateRequest(domain.Params{"title": "t", "content": nil})
	assert.Error(t, err)

	req, err := v.CreateRequest(domain.Params{"title": "t", "content": "c"})
	require.NoError(t, err)
	assert.Equal(t, "t", req.Title)
}

func TestIDLocker_ReleasesEntries(t *testing.T) {
	l := newIDLocker()

	unlockA := l.Lock(1)
	unlockB := l.Lock(2)
	assert.Equal(t, 2, l.size())

	unlockA()
	unlockB()
	assert.Zero(t, l.size())
}
