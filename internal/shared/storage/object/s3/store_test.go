package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	pages    []*s3.ListObjectsV2Output
	calls    int
	prefixes []string
	objects  map[string][]byte
	put      *s3.PutObjectInput
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.prefixes = append(f.prefixes, aws.ToString(in.Prefix))
	if f.calls >= len(f.pages) {
		return nil, errors.New("unexpected list call")
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if _, err := io.ReadAll(in.Body); err != nil {
		return nil, err
	}
	f.put = in
	return &s3.PutObjectOutput{}, nil
}

func TestListFollowsPagesAndStripsPrefix(t *testing.T) {
	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents: []s3types.Object{
				{Key: aws.String("silver/table/cancer_code=BRCA/log_timestamp=200/part-1.json"), Size: aws.Int64(10)},
				{Key: aws.String("silver/table/cancer_code=BRCA/"), Size: aws.Int64(0)},
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents: []s3types.Object{
				{Key: aws.String("silver/table/cancer_code=BRCA/log_timestamp=100/part-1.json"), Size: aws.Int64(12)},
			},
			IsTruncated: aws.Bool(false),
		},
	}}
	store := newWithClient(fake, "bucket", "/silver/", "")

	infos, err := store.List(context.Background(), "table/cancer_code=BRCA/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected 2 list pages, got %d", fake.calls)
	}
	if fake.prefixes[0] != "silver/table/cancer_code=BRCA/" {
		t.Fatalf("unexpected list prefix %q", fake.prefixes[0])
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 objects, got %+v", infos)
	}
	if infos[0].Key != "table/cancer_code=BRCA/log_timestamp=100/part-1.json" || infos[0].Size != 12 {
		t.Fatalf("unexpected first object %+v", infos[0])
	}
}

func TestOpenAppliesPrefix(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"silver/table/part.json": []byte(`{"a":1}`)}}
	store := newWithClient(fake, "bucket", "silver", "")

	rc, err := store.Open(context.Background(), "table/part.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"a":1}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSaveWithKeyUsesKMSWhenConfigured(t *testing.T) {
	fake := &fakeS3{}
	store := newWithClient(fake, "bucket", "", "kms-key")

	n, err := store.SaveWithKey(context.Background(), "table/part.json", "application/x-ndjson", bytes.NewReader([]byte("abc")))
	if err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes written, got %d", n)
	}
	if fake.put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms {
		t.Fatalf("expected KMS encryption, got %s", fake.put.ServerSideEncryption)
	}
	if aws.ToString(fake.put.Key) != "table/part.json" {
		t.Fatalf("unexpected key %q", aws.ToString(fake.put.Key))
	}
}
