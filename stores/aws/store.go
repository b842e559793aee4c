package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"inkboard/core"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// objectAPI is the part of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type s3Store struct {
	client objectAPI
	bucket string
}

// NewStore creates an S3-backed store using the default AWS configuration chain.
func NewStore(ctx context.Context, bucketName string) (core.DrawingStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newStore(s3.NewFromConfig(cfg), bucketName), nil
}

func newStore(client objectAPI, bucket string) *s3Store {
	return &s3Store{client: client, bucket: bucket}
}

func layerPrefix(canvasID string) string {
	return path.Join("canvases", canvasID, "layers") + "/"
}

// objectKey returns canvases/<canvas>/layers/<layer>.json.
func objectKey(canvasID, layerID string) (string, error) {
	if !core.ValidKey(canvasID) {
		return "", fmt.Errorf("invalid canvas id %q", canvasID)
	}
	if !core.ValidKey(layerID) {
		return "", fmt.Errorf("invalid layer id %q", layerID)
	}
	return layerPrefix(canvasID) + layerID + ".json", nil
}

func (s *s3Store) get(ctx context.Context, key string) (*core.Drawing, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get drawing %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read drawing data: %w", err)
	}
	var d core.Drawing
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drawing %s: %w", key, err)
	}
	return &d, nil
}

func (s *s3Store) Latest(ctx context.Context, canvasID, layerID string) (*core.Drawing, error) {
	key, err := objectKey(canvasID, layerID)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, key)
}

func (s *s3Store) Upsert(ctx context.Context, drawing *core.Drawing) error {
	key, err := objectKey(drawing.CanvasID, drawing.LayerID)
	if err != nil {
		return err
	}

	now := time.Now()
	drawing.CreatedAt = now
	if existing, err := s.get(ctx, key); err == nil {
		drawing.CreatedAt = existing.CreatedAt
	}
	drawing.UpdatedAt = now
	drawing.PathCount = core.CountPaths(drawing.Data)

	data, err := json.Marshal(drawing)
	if err != nil {
		return fmt.Errorf("failed to marshal drawing: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save drawing %s: %w", key, err)
	}
	logrus.WithFields(logrus.Fields{
		"canvas_id":   drawing.CanvasID,
		"layer_id":    drawing.LayerID,
		"data_length": len(data),
	}).Info("Drawing saved to S3")
	return nil
}

func (s *s3Store) Delete(ctx context.Context, canvasID, layerID string) error {
	key, err := objectKey(canvasID, layerID)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete drawing %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) List(ctx context.Context, canvasID string) ([]*core.Drawing, error) {
	if !core.ValidKey(canvasID) {
		return nil, fmt.Errorf("invalid canvas id %q", canvasID)
	}
	log := logrus.WithField("canvas_id", canvasID)

	drawings := make([]*core.Drawing, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(layerPrefix(canvasID)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list drawings for canvas %s: %w", canvasID, err)
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			d, err := s.get(ctx, key)
			if err != nil {
				log.WithError(err).Warnf("Failed to read drawing object %s, skipping", key)
				continue
			}
			d.Data = nil
			drawings = append(drawings, d)
		}
	}
	sort.Slice(drawings, func(i, j int) bool {
		return drawings[i].LayerID < drawings[j].LayerID
	})
	return drawings, nil
}
