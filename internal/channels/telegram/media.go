package telegram

import (
	"context"
	"log/slog"

	"github.com/mymmrac/telego"

	"github.com/mozi-run/mozi/internal/transport"
)

// resolveMedia maps the attachments on a Telegram message to the core's
// transport.MediaAttachment union, preferring the largest available photo
// size and leaving Buffer empty — attachments carry the download URL
// resolved via getFile in URL and are fetched lazily by whichever
// collaborator needs the bytes.
func (c *Channel) resolveMedia(ctx context.Context, msg *telego.Message) []transport.MediaAttachment {
	var out []transport.MediaAttachment

	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[0]
		for _, p := range msg.Photo {
			if p.FileSize > largest.FileSize {
				largest = p
			}
		}
		out = append(out, c.fileAttachment(ctx, transport.MediaPhoto, largest.FileID, "", "image/jpeg", msg.Caption, int64(largest.FileSize), largest.Width, largest.Height, 0))

	case msg.Video != nil:
		out = append(out, c.fileAttachment(ctx, transport.MediaVideo, msg.Video.FileID, msg.Video.FileName, msg.Video.MimeType, msg.Caption, int64(msg.Video.FileSize), msg.Video.Width, msg.Video.Height, msg.Video.Duration*1000))

	case msg.Voice != nil:
		out = append(out, c.fileAttachment(ctx, transport.MediaVoice, msg.Voice.FileID, "", msg.Voice.MimeType, msg.Caption, int64(msg.Voice.FileSize), 0, 0, msg.Voice.Duration*1000))

	case msg.Audio != nil:
		out = append(out, c.fileAttachment(ctx, transport.MediaAudio, msg.Audio.FileID, msg.Audio.FileName, msg.Audio.MimeType, msg.Caption, int64(msg.Audio.FileSize), 0, 0, msg.Audio.Duration*1000))

	case msg.Document != nil:
		out = append(out, c.fileAttachment(ctx, transport.MediaDocument, msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType, msg.Caption, int64(msg.Document.FileSize), 0, 0, 0))
	}

	return out
}

// fileAttachment resolves fileID to a direct download URL with a single
// getFile call, deferring the actual byte fetch to the caller instead of
// eagerly downloading into memory. A failed getFile is not retried: the
// attachment is returned with URL empty.
func (c *Channel) fileAttachment(ctx context.Context, kind transport.MediaKind, fileID, filename, mimeType, caption string, sizeByte int64, widthPx, heightPx, durationMs int) transport.MediaAttachment {
	att := transport.MediaAttachment{
		Kind:       kind,
		MimeType:   mimeType,
		Filename:   filename,
		Caption:    caption,
		SizeByte:   sizeByte,
		WidthPx:    widthPx,
		HeightPx:   heightPx,
		DurationMs: durationMs,
	}

	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		slog.Warn("telegram getFile failed, leaving attachment unresolved", "file_id", fileID, "error", err)
		return att
	}
	att.URL = c.bot.FileDownloadURL(file.FilePath)
	return att
}
