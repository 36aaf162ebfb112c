package blobstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeS3 is a bucket held in memory that answers like the S3 API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	pageLen int
}

type fakeObject struct {
	data        []byte
	contentType string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]fakeObject{}, pageLen: 2} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

// ListObjectsV2 pages through keys in lexical order so the paginator loop is exercised.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		for start < len(keys) && keys[start] <= tok {
			start++
		}
	}
	end := start + f.pageLen
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	Convey("Given an S3 store over a fake bucket", t, func() {
		storeContract(newS3StoreWithClient(newFakeS3(), "images"))
	})

	Convey("Given a non-seekable body", t, func() {
		fake := newFakeS3()
		store := newS3StoreWithClient(fake, "images")
		pr, pw := io.Pipe()
		go func() {
			_, _ = pw.Write([]byte("streamed"))
			_ = pw.Close()
		}()

		Convey("Then Put should buffer it and store the bytes", func() {
			So(store.Put(context.Background(), "s-k.png", pr, -1, "image/png"), ShouldBeNil)
			So(string(fake.objects["s-k.png"].data), ShouldEqual, "streamed")
		})
	})

	Convey("Given an S3 config without bucket", t, func() {
		_, err := NewS3Store(context.Background(), S3Config{})

		Convey("Then construction should fail", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
