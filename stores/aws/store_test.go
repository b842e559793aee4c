package aws

import (
	"bytes"
	"context"
	"errors"
	"inkboard/core"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory bucket implementing objectAPI.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = data
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestUpsertWritesLayerObject(t *testing.T) {
	fake := newFakeS3()
	store := newStore(fake, "bucket")
	ctx := context.Background()

	if err := store.Upsert(ctx, &core.Drawing{CanvasID: "c1", LayerID: "l1", Data: []byte(`[{"id":"a"}]`)}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if _, ok := fake.objects["canvases/c1/layers/l1.json"]; !ok {
		t.Errorf("object keys = %v", fake.objects)
	}

	got, err := store.Latest(ctx, "c1", "l1")
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if string(got.Data) != `[{"id":"a"}]` || got.PathCount != 1 {
		t.Errorf("Latest() = %+v", got)
	}
}

func TestLatestNotFound(t *testing.T) {
	store := newStore(newFakeS3(), "bucket")
	if _, err := store.Latest(context.Background(), "c", "l"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	store := newStore(newFakeS3(), "bucket")
	if _, err := store.Latest(context.Background(), "..", "l"); err == nil {
		t.Error("Latest() accepted a dot directory canvas id")
	}
	if err := store.Delete(context.Background(), "c", "a/b"); err == nil {
		t.Error("Delete() accepted a layer id with a slash")
	}
}

func TestDeleteAndList(t *testing.T) {
	fake := newFakeS3()
	store := newStore(fake, "bucket")
	ctx := context.Background()
	store.Upsert(ctx, &core.Drawing{CanvasID: "c", LayerID: "b", Data: []byte(`[1]`)})
	store.Upsert(ctx, &core.Drawing{CanvasID: "c", LayerID: "a", Data: []byte(`[1,2]`)})
	store.Upsert(ctx, &core.Drawing{CanvasID: "other", LayerID: "a", Data: []byte(`[1]`)})

	list, err := store.List(ctx, "c")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 || list[0].LayerID != "a" || list[0].Data != nil || list[0].PathCount != 2 {
		t.Fatalf("List() = %+v", list)
	}

	if err := store.Delete(ctx, "c", "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	list, _ = store.List(ctx, "c")
	if len(list) != 1 || list[0].LayerID != "b" {
		t.Errorf("List() after delete = %+v", list)
	}
}
