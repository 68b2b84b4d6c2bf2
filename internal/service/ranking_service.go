package service

import (
	"context"
	"errors"

	"qadam_backend/internal/model"
	"qadam_backend/internal/repository"
	"qadam_backend/internal/util"
)

type RankingSource interface {
	Top(ctx context.Context, limit int) ([]repository.RankingEntry, error)
	FindByUser(ctx context.Context, userID uint) (*model.UserRanking, error)
}

type UserDirectory interface {
	FindByIDs(ctx context.Context, ids []uint) ([]model.User, error)
}

type LeaderboardRow struct {
	repository.RankingEntry
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type RankingService struct {
	Rankings RankingSource
	Users    UserDirectory
}

func NewRankingService(rankings RankingSource, users UserDirectory) *RankingService {
	return &RankingService{Rankings: rankings, Users: users}
}

func (s *RankingService) Top(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	entries, err := s.Rankings.Top(ctx, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	names := map[uint]model.User{}
	if s.Users != nil {
		users, err := s.Users.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u
		}
	}

	rows := make([]LeaderboardRow, len(entries))
	for i, e := range entries {
		u := names[e.UserID]
		rows[i] = LeaderboardRow{RankingEntry: e, Name: u.Name, Avatar: u.Avatar}
	}
	return rows, nil
}

// Mine 返回当前用户的排名聚合，尚未完成过测试时返回零值
func (s *RankingService) Mine(ctx context.Context, userID uint) (*model.UserRanking, error) {
	ranking, err := s.Rankings.FindByUser(ctx, userID)
	if errors.Is(err, util.ErrRankingNotFound) {
		return &model.UserRanking{UserID: userID}, nil
	}
	return ranking, err
}
