package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/magneticlabs/credits-backend/api/responses"
	"github.com/magneticlabs/credits-backend/internal/entitlement"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

const (
	signatureHeader   = "X-Hotmart-Signature"
	legacyTokenHeader = "X-Hotmart-Hottok"
)

type HotmartWebhookService interface {
	HandleDelivery(ctx context.Context, delivery entitlement.Delivery) *entitlement.Ack
}

// HotmartWebhook receives purchase lifecycle events. Verification, dedup and
// processing all happen in the entitlement service; every verified delivery is
// answered 200 so the provider stops retrying.
func HotmartWebhook(svc HotmartWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		ack := svc.HandleDelivery(ctx, entitlement.Delivery{
			Body:      payload,
			Signature: r.Header.Get(signatureHeader),
			Token:     r.Header.Get(legacyTokenHeader),
		})
		responses.WriteJSON(w, http.StatusOK, ack)
	}
}
