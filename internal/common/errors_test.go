package common_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-storefront/internal/common"
)

func TestAppErrorChain(t *testing.T) {
	cause := errors.New("record not found")
	appErr := common.NewAppError("NOT_FOUND", "cart not found", http.StatusNotFound, cause).
		WithDetails(map[string]string{"id": "missing"})

	require.Equal(t, "cart not found", appErr.Error())
	require.ErrorIs(t, appErr, cause)

	wrapped := fmt.Errorf("load: %w", appErr)
	got, ok := common.AsAppError(wrapped)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, got.HTTPStatus)
	require.Equal(t, "NOT_FOUND", got.Code)

	_, ok = common.AsAppError(cause)
	require.False(t, ok)
}

func TestAppErrorMessageFallsBackToCause(t *testing.T) {
	appErr := common.NewAppError("CONFLICT", "", http.StatusConflict, errors.New("version conflict"))
	require.Equal(t, "version conflict", appErr.Error())
}
