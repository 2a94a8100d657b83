// Package files serves the agent's fs/read_text_file and
// fs/write_text_file capability calls against the host filesystem.
package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// ErrRelativePath rejects paths that are not absolute. The agent always
// sends absolute paths; anything else would resolve against the host's own
// working directory.
var ErrRelativePath = errors.New("path must be absolute")

// Service implements the file capability methods.
type Service struct {
	logger *logger.Logger
}

// NewService creates a file service.
func NewService(log *logger.Logger) *Service {
	return &Service{
		logger: log.WithFields(zap.String("component", "file-service")),
	}
}

// ReadTextFile returns the file's content, optionally windowed to a
// 1-based starting line and a line count.
func (s *Service) ReadTextFile(ctx context.Context, p protocol.ReadTextFileParams) (protocol.ReadTextFileResult, error) {
	if !filepath.IsAbs(p.Path) {
		return protocol.ReadTextFileResult{}, ErrRelativePath
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return protocol.ReadTextFileResult{}, fmt.Errorf("reading %s: %w", p.Path, err)
	}
	content := string(data)

	if p.Line != nil || p.Limit != nil {
		content = windowLines(content, p.Line, p.Limit)
	}

	s.logger.Debug("file read",
		zap.String("path", p.Path),
		zap.Int("bytes", len(content)))
	return protocol.ReadTextFileResult{Content: content}, nil
}

// WriteTextFile writes content to the path, creating parent directories as
// needed.
func (s *Service) WriteTextFile(ctx context.Context, p protocol.WriteTextFileParams) (protocol.WriteTextFileResult, error) {
	if !filepath.IsAbs(p.Path) {
		return protocol.WriteTextFileResult{}, ErrRelativePath
	}

	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return protocol.WriteTextFileResult{}, fmt.Errorf("creating parent directory for %s: %w", p.Path, err)
	}
	if err := os.WriteFile(p.Path, []byte(p.Content), 0o644); err != nil {
		return protocol.WriteTextFileResult{}, fmt.Errorf("writing %s: %w", p.Path, err)
	}

	s.logger.Debug("file written",
		zap.String("path", p.Path),
		zap.Int("bytes", len(p.Content)))
	return protocol.WriteTextFileResult{}, nil
}

// windowLines cuts content to the requested line range. line is 1-based;
// out-of-range requests return an empty string rather than an error.
func windowLines(content string, line, limit *int) string {
	lines := strings.Split(content, "\n")

	start := 0
	if line != nil && *line > 1 {
		start = *line - 1
	}
	if start >= len(lines) {
		return ""
	}

	end := len(lines)
	if limit != nil && *limit > 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "\n")
}
