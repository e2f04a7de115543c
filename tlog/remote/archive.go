/*
Copyright (C) 2026  tlog contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package remote archives sealed generations of a tlog to an S3-compatible
// bucket, giving a replication or disaster-recovery peer an off-host copy
// once a generation is no longer expected to change.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BucketConfig describes the S3-compatible endpoint an Archiver uploads to.
type BucketConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // custom endpoint for MinIO/S3-compatible stores
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// Archiver uploads sealed generation files (and their checkpoint sidecar)
// to S3, compressing the body with the configured Codec first. It does not
// check whether a generation is sealed: given the live writer's generation,
// it uploads that .tlog file as it currently stands and then fails on the
// missing .ckp sidecar.
type Archiver struct {
	cfg   BucketConfig
	codec Codec

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewArchiver builds an Archiver that will lazily connect on first use.
func NewArchiver(cfg BucketConfig, codec Codec) *Archiver {
	return &Archiver{cfg: cfg, codec: codec}
}

func (a *Archiver) ensureOpen(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	var opts []func(*config.LoadOptions) error
	if a.cfg.Region != "" {
		opts = append(opts, config.WithRegion(a.cfg.Region))
	}
	if a.cfg.AccessKeyID != "" && a.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AccessKeyID, a.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("remote: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if a.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(a.cfg.Endpoint)
		})
	}
	if a.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	a.client = s3.NewFromConfig(awsCfg, s3Opts...)
	a.opened = true
	return nil
}

func (a *Archiver) objectKey(name string) string {
	pfx := strings.TrimSuffix(a.cfg.Prefix, "/")
	if pfx == "" {
		return name
	}
	return pfx + "/" + name
}

// ArchiveGeneration uploads dir/<prefix>-<gen>.tlog and its .ckp sidecar,
// each compressed with the Archiver's codec, under keys named after the
// local file plus the codec's extension.
func (a *Archiver) ArchiveGeneration(ctx context.Context, dir, prefix string, gen uint64) error {
	if err := a.ensureOpen(ctx); err != nil {
		return err
	}

	tlogName := fmt.Sprintf("%s-%d.tlog", prefix, gen)
	ckpName := fmt.Sprintf("%s-%d.ckp", prefix, gen)

	if err := a.uploadFile(ctx, filepath.Join(dir, tlogName), tlogName); err != nil {
		return err
	}
	return a.uploadFile(ctx, filepath.Join(dir, ckpName), ckpName)
}

func (a *Archiver) uploadFile(ctx context.Context, localPath, remoteName string) error {
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("remote: read %s: %w", localPath, err)
	}
	compressed, err := a.codec.Compress(raw)
	if err != nil {
		return fmt.Errorf("remote: compress %s: %w", localPath, err)
	}

	key := a.objectKey(remoteName + a.codec.Extension())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(compressed),
	})
	if err != nil {
		return fmt.Errorf("remote: put %s: %w", key, err)
	}
	return nil
}
