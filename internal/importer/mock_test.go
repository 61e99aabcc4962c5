package importer

import (
	"context"
	"os"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/relationship-crm/internal/model"
)

type mockContactWriter struct {
	mock.Mock
}

func (m *mockContactWriter) ImportContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	// Copy, the importer reuses its batch slice.
	cp := append([]model.Contact(nil), contacts...)
	args := m.Called(ctx, cp)
	return args.Get(0).(int64), args.Error(1)
}

// fileDownloader serves a fixed payload in place of an FTP server.
type fileDownloader struct {
	mock.Mock
	payload []byte
}

func (d *fileDownloader) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	args := d.Called(ctx, url)
	if err := args.Error(0); err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, d.payload, 0o644); err != nil {
		return 0, err
	}
	return int64(len(d.payload)), nil
}
