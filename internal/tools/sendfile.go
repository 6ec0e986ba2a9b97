package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/pocketd/internal/agent"
	"github.com/haasonsaas/pocketd/internal/tools/files"
	"github.com/haasonsaas/pocketd/pkg/models"
)

// MaxSendFileSize caps attachments at 50 MiB.
const MaxSendFileSize = 50 << 20

// Extensions a send_file attachment may carry, grouped by media type.
var sendableExtensions = map[string]models.MediaType{
	".jpg": models.MediaImage, ".jpeg": models.MediaImage, ".png": models.MediaImage,
	".gif": models.MediaImage, ".webp": models.MediaImage, ".svg": models.MediaImage,
	".mp3": models.MediaAudio, ".ogg": models.MediaAudio, ".wav": models.MediaAudio,
	".m4a": models.MediaAudio, ".flac": models.MediaAudio,
	".mp4": models.MediaVideo, ".webm": models.MediaVideo, ".mov": models.MediaVideo,
	".pdf": models.MediaFile, ".txt": models.MediaFile, ".md": models.MediaFile,
	".csv": models.MediaFile, ".json": models.MediaFile, ".yaml": models.MediaFile,
	".yml": models.MediaFile, ".log": models.MediaFile, ".zip": models.MediaFile,
	".tar": models.MediaFile, ".gz": models.MediaFile, ".html": models.MediaFile,
	".xml": models.MediaFile, ".docx": models.MediaFile, ".xlsx": models.MediaFile,
}

// SendFileTool publishes an outbound message carrying one file from the
// workspace.
type SendFileTool struct {
	publisher Publisher
	resolver  files.Resolver
}

// NewSendFileTool creates a send_file tool sandboxed to the workspace.
func NewSendFileTool(publisher Publisher, workspace string) *SendFileTool {
	return &SendFileTool{
		publisher: publisher,
		resolver:  files.Resolver{Root: workspace},
	}
}

func (t *SendFileTool) Name() string { return "send_file" }

func (t *SendFileTool) Description() string {
	return "Send a file from the workspace to a chat, with an optional caption."
}

func (t *SendFileTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to send.",
			},
			"caption": map[string]interface{}{
				"type":        "string",
				"description": "Optional caption shown with the file.",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Target channel (defaults to the current one).",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Target chat id (defaults to the current one).",
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *SendFileTool) Available() bool { return t.publisher != nil }

func (t *SendFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Caption string `json:"caption"`
		Channel string `json:"channel"`
		ChatID  string `json:"chat_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Path == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("file not found: %s", input.Path)), nil
	}
	if info.IsDir() {
		return toolError(fmt.Sprintf("not a file: %s", input.Path)), nil
	}
	if info.Size() > MaxSendFileSize {
		return toolError(fmt.Sprintf("file is %d bytes, exceeds the %d byte limit", info.Size(), MaxSendFileSize)), nil
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	mediaType, ok := sendableExtensions[ext]
	if !ok {
		return toolError(fmt.Sprintf("file type %q is not sendable", ext)), nil
	}

	channel, chatID := resolveTarget(ctx, input.Channel, input.ChatID)
	if channel == "" || chatID == "" {
		return toolError("no target: channel and chat_id are required outside a conversation"), nil
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	msg := models.OutboundMessage{
		Channel: models.ChannelType(channel),
		ChatID:  chatID,
		Content: input.Caption,
		Media: []models.Media{{
			Type:     mediaType,
			Path:     resolved,
			MimeType: mimeType,
			Filename: filepath.Base(resolved),
		}},
	}
	if err := t.publisher.PublishOutbound(ctx, msg); err != nil {
		return toolError(fmt.Sprintf("publish file: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"status":  "sent",
		"file":    filepath.Base(resolved),
		"size":    info.Size(),
		"type":    string(mediaType),
		"mime":    mimeType,
		"channel": channel,
		"chat_id": chatID,
	}), nil
}
