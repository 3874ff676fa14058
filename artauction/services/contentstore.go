// services/contentstore.go
package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/zeebo/blake3"

	"github.com/chainpalette/art-auction/artauction/apperror"
)

const putTimeout = 30 * time.Second

// BlobStore is the write surface of the content-addressed store. No get
// path exists here: retrieval goes through public gateway URIs built from
// the address.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	GatewayURL(address string) string
}

// ContentStore persists blobs to a Spaces bucket under their own content
// address, so putting identical bytes twice lands on the same object and
// re-running an ingestion is harmless.
type ContentStore struct {
	client *s3.Client
	bucket string
	region string
	root   string
}

func NewContentStore(spacesKey, spacesSecret, region, bucket, root string) *ContentStore {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to load content store config: %v", err))
	}

	return &ContentStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		root:   strings.Trim(root, "/"),
	}
}

// ContentAddress is the hash-derived identifier of a byte blob,
// deterministic over content.
func ContentAddress(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *ContentStore) Put(ctx context.Context, data []byte) (string, error) {
	address := ContentAddress(data)
	key := s.objectKey(address)

	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
		ACL:    types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", apperror.Storage(fmt.Sprintf("failed to store blob %s", address), err)
	}
	return address, nil
}

func (s *ContentStore) GatewayURL(address string) string {
	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s", s.bucket, s.region, s.objectKey(address))
}

func (s *ContentStore) objectKey(address string) string {
	if s.root == "" {
		return address
	}
	return s.root + "/" + address
}
