package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"qadam_backend/internal/config"
	"qadam_backend/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StorageProvider 题目图片的访问地址解析。上传与管理由内容编辑端负责。
type StorageProvider interface {
	URL(ctx context.Context, key string) (string, error)
}

// LocalStorageProvider 本地存储，静态目录 /uploads
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) URL(_ context.Context, key string) (string, error) {
	return "/uploads/" + strings.TrimPrefix(key, "/"), nil
}

// MinioStorageProvider MinIO 存储，返回预签名 GET 链接
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) URL(ctx context.Context, key string) (string, error) {
	expiry := time.Duration(p.Config.PresignMinutes) * time.Minute
	if expiry <= 0 {
		expiry = time.Hour
	}
	u, err := p.Client.PresignedGetObject(ctx, p.Config.MinioBucket, strings.TrimPrefix(key, "/"), expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func NewStorageProvider(cfg *config.StorageConfig) (StorageProvider, error) {
	switch cfg.Type {
	case util.StorageMinio:
		return NewMinioStorageProvider(cfg)
	case util.StorageLocal, "":
		return &LocalStorageProvider{Config: cfg}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// resolveImage 已是绝对地址的图片原样返回
func resolveImage(ctx context.Context, p StorageProvider, ref string) (string, error) {
	if ref == "" || p == nil {
		return ref, nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	return p.URL(ctx, ref)
}
