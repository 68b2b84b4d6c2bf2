package service

import (
	"context"
	"testing"

	"qadam_backend/internal/model"
	"qadam_backend/internal/repository"
	"qadam_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRankings []repository.RankingEntry

func (s staticRankings) Top(_ context.Context, limit int) ([]repository.RankingEntry, error) {
	if limit < len(s) {
		return s[:limit], nil
	}
	return s, nil
}

func (s staticRankings) FindByUser(_ context.Context, userID uint) (*model.UserRanking, error) {
	for _, e := range s {
		if e.UserID == userID {
			return &model.UserRanking{UserID: userID, TotalScore: e.TotalScore, TestsCompleted: e.TestsCompleted}, nil
		}
	}
	return nil, util.ErrRankingNotFound
}

type staticUsers []model.User

func (s staticUsers) FindByIDs(_ context.Context, ids []uint) ([]model.User, error) {
	return s, nil
}

func TestRanking_TopAttachesNames(t *testing.T) {
	rankings := staticRankings{
		{Rank: 1, UserID: 2, TotalScore: 30},
		{Rank: 2, UserID: 1, TotalScore: 12},
	}
	users := staticUsers{
		{BaseModel: model.BaseModel{ID: 1}, Name: "Aruzhan"},
		{BaseModel: model.BaseModel{ID: 2}, Name: "Dias"},
	}
	svc := NewRankingService(rankings, users)

	rows, err := svc.Top(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Dias", rows[0].Name)
	assert.Equal(t, 30, rows[0].TotalScore)
	assert.Equal(t, "Aruzhan", rows[1].Name)

	rows, err = svc.Top(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRanking_MineDefaultsToZero(t *testing.T) {
	svc := NewRankingService(staticRankings{{Rank: 1, UserID: 2, TotalScore: 30, TestsCompleted: 2}}, nil)

	mine, err := svc.Mine(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 30, mine.TotalScore)
	assert.Equal(t, 2, mine.TestsCompleted)

	none, err := svc.Mine(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, uint(9), none.UserID)
	assert.Equal(t, 0, none.TotalScore)
}
