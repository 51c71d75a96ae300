package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/aissential/contractwatch/retry"
)

// drivePageSize is the listing page size per folder.
const drivePageSize = 100

// driveFields limits list responses to what the scan cycle needs.
const driveFields = "nextPageToken, files(id, name, mimeType)"

// Drive lists and downloads documents from configured Google Drive folders
// using a read-only service account.
type Drive struct {
	svc       *drive.Service
	folderIDs []string
	logger    *slog.Logger
}

// NewDrive creates a Drive source authenticated from a service account
// credentials file.
func NewDrive(ctx context.Context, credentialsFile string, folderIDs []string, logger *slog.Logger) (*Drive, error) {
	if len(folderIDs) == 0 {
		return nil, fmt.Errorf("at least one folder ID is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Drive{svc: svc, folderIDs: folderIDs, logger: logger}, nil
}

// Name identifies the source.
func (d *Drive) Name() string { return "drive" }

// List returns the non-trashed files of every configured folder, paginating
// past the page size. Errors are classified for the retry policy upstream.
func (d *Drive) List(ctx context.Context) ([]File, error) {
	var files []File

	for _, folderID := range d.folderIDs {
		query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
		pageToken := ""

		for {
			call := d.svc.Files.List().
				Q(query).
				Fields(driveFields).
				PageSize(drivePageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			res, err := call.Do()
			if err != nil {
				return nil, classifyDriveError(fmt.Errorf("list folder %s: %w", folderID, err))
			}

			for _, f := range res.Files {
				files = append(files, File{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
			}

			pageToken = res.NextPageToken
			if pageToken == "" {
				break
			}
		}
	}

	d.logger.Debug("Drive listing complete",
		"folders", len(d.folderIDs),
		"files", len(files))

	return files, nil
}

// Download fetches a file's raw content.
func (d *Drive) Download(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, classifyDriveError(fmt.Errorf("download file %s: %w", id, err))
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.NewTransientError(fmt.Errorf("read file %s: %w", id, err))
	}
	return content, nil
}

// classifyDriveError maps Drive API failures onto the retry taxonomy: rate
// limiting and server-side trouble are transient; permission and not-found
// errors will not improve on retry.
func classifyDriveError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code == 408 || apiErr.Code >= 500:
			return retry.NewTransientError(err)
		case apiErr.Code == 401 || apiErr.Code == 403 || apiErr.Code == 404:
			return retry.NewFatalError(err)
		default:
			return retry.NewFatalError(err)
		}
	}
	// Transport-level failures (timeouts, resets) are transient.
	return retry.NewTransientError(err)
}
