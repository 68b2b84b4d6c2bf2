package repository

import (
	"context"
	"errors"
	"strconv"

	"qadam_backend/internal/model"
	"qadam_backend/internal/util"
	"qadam_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaderboardKey = "leaderboard:total_score"

type RankingEntry struct {
	Rank           int     `json:"rank"`
	UserID         uint    `json:"userId"`
	TotalScore     int     `json:"totalScore"`
	TestsCompleted int     `json:"testsCompleted"`
	BestPercentage float64 `json:"bestPercentage"`
}

// RankingRepository MySQL 聚合为准，Redis 有序集合作为排行榜镜像
type RankingRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewRankingRepository(db *gorm.DB, rdb *redis.Client) *RankingRepository {
	return &RankingRepository{DB: db, Redis: rdb}
}

func (r *RankingRepository) RecordScore(ctx context.Context, userID uint, score int) error {
	if r.Redis == nil {
		return nil
	}
	return r.Redis.ZIncrBy(ctx, leaderboardKey, float64(score), strconv.FormatUint(uint64(userID), 10)).Err()
}

func (r *RankingRepository) FindByUser(ctx context.Context, userID uint) (*model.UserRanking, error) {
	var ranking model.UserRanking
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&ranking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrRankingNotFound
		}
		return nil, err
	}
	return &ranking, nil
}

// Top 优先读取 Redis，缺失或出错时回退到数据库
func (r *RankingRepository) Top(ctx context.Context, limit int) ([]RankingEntry, error) {
	if r.Redis != nil {
		entries, err := r.topFromRedis(ctx, limit)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			logger.Log.Warn("leaderboard cache unavailable, falling back to database", zap.Error(err))
		}
	}
	return r.topFromDB(ctx, limit)
}

func (r *RankingRepository) topFromRedis(ctx context.Context, limit int) ([]RankingEntry, error) {
	zs, err := r.Redis.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(zs) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}

	var rows []model.UserRanking
	if err := r.DB.WithContext(ctx).Where("user_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byUser := make(map[uint]model.UserRanking, len(rows))
	for _, row := range rows {
		byUser[row.UserID] = row
	}

	entries := make([]RankingEntry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		row := byUser[uint(id)]
		entries = append(entries, RankingEntry{
			Rank:           i + 1,
			UserID:         uint(id),
			TotalScore:     int(z.Score),
			TestsCompleted: row.TestsCompleted,
			BestPercentage: row.BestPercentage,
		})
	}
	return entries, nil
}

func (r *RankingRepository) topFromDB(ctx context.Context, limit int) ([]RankingEntry, error) {
	var rows []model.UserRanking
	err := r.DB.WithContext(ctx).
		Order("total_score DESC").Order("best_percentage DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]RankingEntry, len(rows))
	for i, row := range rows {
		entries[i] = RankingEntry{
			Rank:           i + 1,
			UserID:         row.UserID,
			TotalScore:     row.TotalScore,
			TestsCompleted: row.TestsCompleted,
			BestPercentage: row.BestPercentage,
		}
	}
	return entries, nil
}
