// Package gdrive uploads finished commentary videos to a Google Drive folder
// for sharing.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type Uploader struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewUploader(ctx context.Context, credPath, folderID string) (*Uploader, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Uploader{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// Upload sends the session's final video to the configured folder. Re-running
// a session updates its existing Drive file instead of creating a duplicate.
func (u *Uploader) Upload(ctx context.Context, localPath, sessionID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := u.fileIDs[sessionID]; ok {
		_, err = u.service.Files.Update(fileID, &drive.File{}).Media(f).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := u.service.Files.Create(&drive.File{
		Name:     fmt.Sprintf("matchcast-%s.mp4", sessionID),
		MimeType: "video/mp4",
		Parents:  []string{u.folderID},
	}).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	u.fileIDs[sessionID] = doc.Id
	return nil
}
