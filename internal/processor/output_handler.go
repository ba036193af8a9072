package processor

import (
	"context"
	"os"
	"path"

	"subrender/internal/pkg/errors"
	"subrender/internal/ports"
)

// OutputHandler mirrors finished artifacts to the configured storage provider.
type OutputHandler struct {
	sp ports.StorageProvider
}

func NewOutputHandler(sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{sp: sp}
}

// Enabled reports whether a mirror is configured.
func (oh *OutputHandler) Enabled() bool {
	return oh.sp != nil
}

// MirrorKey is the object key an artifact is stored under.
func MirrorKey(artifact string) string {
	return path.Join("renders", artifact)
}

// Publish uploads the artifact at localPath and returns the provider's key.
func (oh *OutputHandler) Publish(ctx context.Context, localPath, artifact string) (string, error) {
	if !oh.Enabled() {
		return "", nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, "processor.publish", "failed to open artifact")
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "processor.publish", "failed to stat artifact")
	}

	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   MirrorKey(artifact),
		ContentType: "video/mp4",
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return "", errors.Wrap(err, "processor.publish", "failed to upload artifact").
			WithField("provider", oh.sp.Provider())
	}
	return out.ObjectKey, nil
}
