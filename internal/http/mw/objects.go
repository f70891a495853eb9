package mw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectGetter is the slice of the S3 client the bucket-backed middleware
// needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// fetchJSON decodes the object at key into v unless its ETag still equals
// etag. changed is false, with a nil error, when the object is unmodified.
func fetchJSON(ctx context.Context, c ObjectGetter, bucket, key, etag string, v any) (newETag string, changed bool, err error) {
	in := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if etag != "" {
		in.IfNoneMatch = aws.String(`"` + etag + `"`)
	}

	resp, err := c.GetObject(ctx, in)
	if err != nil {
		var coded interface{ ErrorCode() string }
		if errors.As(err, &coded) && coded.ErrorCode() == "NotModified" {
			return etag, false, nil
		}
		return "", false, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return "", false, fmt.Errorf("decode %s: %w", key, err)
	}
	return strings.Trim(aws.ToString(resp.ETag), `"`), true, nil
}

func isMissingObject(err error) bool {
	var noKey *types.NoSuchKey
	return errors.As(err, &noKey)
}
