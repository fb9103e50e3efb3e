package conversation

import (
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wireapp/wire-apps-go-sdk/internal/model"
	"github.com/wireapp/wire-apps-go-sdk/internal/sdkerr"
)

func decodeGroupId(b64 string) (model.MlsGroupId, error) {
	return base64.StdEncoding.DecodeString(b64)
}

// mustParseUUID parses ids the backend itself generated and returned
// to us; a parse failure here means the backend response was
// malformed, which is a programmer-visible bug rather than a
// recoverable runtime condition.
func mustParseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		panic("conversation: backend returned malformed id: " + s)
	}
	return id
}

func logClaimFailures(err error) {
	slog.Warn("some key-package claims failed and were skipped", "error", err)
}

func isStaleEpoch(err error) bool {
	var sdkErr *sdkerr.Error
	if errors.As(err, &sdkErr) {
		return sdkErr.StaleEpoch
	}
	return false
}
