package aws

import (
	"bytes"
	"context"
	"lodging/src/lib"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores generated documents (ledger statements) in a bucket.
type S3Uploader struct {
	Bucket  string
	client  s3API
	presign *s3.PresignClient
}

func NewS3Uploader(bucket string) *S3Uploader {
	client := lib.AWSGetS3Client()
	u := &S3Uploader{Bucket: bucket}
	if client != nil {
		u.client = client
		u.presign = s3.NewPresignClient(client)
	}
	return u
}

// Upload puts body under key and returns a presigned download URL when one can be made.
func (u *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Printf("Could not put object to S3 bucket: %s\n", err.Error())
		return "", err
	}
	log.Printf("Added object '%s' to bucket '%s'", key, u.Bucket)
	if u.presign == nil {
		return "", nil
	}
	r, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = time.Hour
	})
	if err != nil {
		log.Printf("Could not generate presigned URL for object [%s]: %s\n", key, err.Error())
		return "", nil
	}
	return r.URL, nil
}
