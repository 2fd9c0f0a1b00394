package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"blindshake_server/models"
)

const geoPrecision uint = 6

func TestMatchmakerPick(t *testing.T) {
	mm := &Matchmaker{opts: DefaultMatchingOptions()}
	at := func(d time.Duration) time.Time { return t0.Add(d) }

	tests := []struct {
		name  string
		cands []candidate
		want  string
	}{
		{
			name: "nearest wins outside epsilon",
			cands: []candidate{
				{seeker: models.Seeker{UserID: "far", JoinedAt: at(10 * time.Second)}, distance: 5},
				{seeker: models.Seeker{UserID: "near", JoinedAt: at(0)}, distance: 1},
			},
			want: "near",
		},
		{
			name: "newest wins inside epsilon",
			cands: []candidate{
				{seeker: models.Seeker{UserID: "older", JoinedAt: at(0)}, distance: 0.2},
				{seeker: models.Seeker{UserID: "newer", JoinedAt: at(5 * time.Second)}, distance: 0.9},
			},
			want: "newer",
		},
		{
			name: "epsilon measured from nearest",
			cands: []candidate{
				{seeker: models.Seeker{UserID: "a", JoinedAt: at(0)}, distance: 0.1},
				{seeker: models.Seeker{UserID: "b", JoinedAt: at(time.Second)}, distance: 0.8},
				{seeker: models.Seeker{UserID: "c", JoinedAt: at(9 * time.Second)}, distance: 1.5},
			},
			want: "b",
		},
		{
			name: "single candidate",
			cands: []candidate{
				{seeker: models.Seeker{UserID: "only"}, distance: 900},
			},
			want: "only",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mm.pick(tt.cands).seeker.UserID)
		})
	}
}
