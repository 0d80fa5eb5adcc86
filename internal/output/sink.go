// Package output persists generated images. The local directory sink is
// always used; an S3 mirror can be layered on top with MultiSink.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/reimagine/internal/filehandler"
	"github.com/fpang/reimagine/internal/s3util"
	"github.com/rs/zerolog/log"
)

// Sink stores one generated image under name and returns where it went.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// DirSink writes files into a local directory, creating it on first use.
// Writes go straight to the destination: a crash mid-write can leave a
// partial file. Same-named outputs overwrite each other.
type DirSink struct {
	Dir string
}

// NewDirSink creates a sink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

// Write stores data at Dir/name.
func (s *DirSink) Write(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outPath := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}

	log.Debug().Str("path", outPath).Int("bytes", len(data)).Msg("Output written")
	return outPath, nil
}

// S3Sink uploads files to bucket under Prefix/RunID/name.
type S3Sink struct {
	Client    s3util.PutObjectAPI
	Presigner s3util.PresignGetObjectAPI
	Bucket    string
	Prefix    string
	RunID     string

	// PresignExpiry, when positive and Presigner is set, makes Write return a
	// pre-signed GET URL instead of the s3:// location.
	PresignExpiry time.Duration
}

// Write uploads data and returns its s3:// location or a pre-signed URL.
func (s *S3Sink) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := s3util.ObjectKey(s.Prefix, s.RunID, filepath.Base(name))
	contentType := filehandler.DetectMIMEType(name, data)

	if err := s3util.UploadBytes(ctx, s.Client, s.Bucket, key, data, contentType); err != nil {
		return "", err
	}

	if s.Presigner != nil && s.PresignExpiry > 0 {
		url, err := s3util.GeneratePresignedURL(ctx, s.Presigner, s.Bucket, key, s.PresignExpiry)
		if err != nil {
			return "", err
		}
		return url, nil
	}
	return "s3://" + s.Bucket + "/" + key, nil
}

// MultiSink writes to every sink in order and stops at the first failure.
// The returned location is the first sink's.
type MultiSink []Sink

// Write stores data in each sink.
func (m MultiSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	var first string
	for i, sink := range m {
		loc, err := sink.Write(ctx, name, data)
		if err != nil {
			return "", err
		}
		if i == 0 {
			first = loc
		} else {
			log.Info().Str("name", name).Str("location", loc).Msg("Output mirrored")
		}
	}
	return first, nil
}
