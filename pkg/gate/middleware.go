package gate

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ordkit/ordinals-x402/pkg/types"
)

// bufferedWriter holds the handler's response so settlement can run, and
// the settlement header be attached, before anything reaches the wire.
type bufferedWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
}

func (w *bufferedWriter) flush() error {
	w.ResponseWriter.WriteHeader(w.statusCode)
	_, err := w.ResponseWriter.Write(w.body.Bytes())
	return err
}

// PaymentMiddleware gates one route behind a price in USDC atomic units.
// The flow per request: challenge or verify, run the handler, settle,
// respond. A settlement failure after the handler ran surfaces as a 502
// and lands in the journal; the handler's effect stands.
func PaymentMiddleware(g *Gate, price int64, description string, cfg PricingConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := BuildRequirements(price, c.Request.URL.Path, description, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "misconfigured payment requirements",
			})
			return
		}

		decision, err := g.Admit(c.Request.Context(), c.Request.Header, req)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "payment verification unavailable",
			})
			return
		}

		switch decision.Kind {
		case DecisionChallenge:
			c.AbortWithStatusJSON(http.StatusPaymentRequired, types.PaymentRequired{
				X402Version: types.ProtocolVersion,
				Error:       "payment required",
				Accepts:     []types.PaymentRequirements{decision.Requirements},
			})
			return
		case DecisionRejected:
			c.AbortWithStatusJSON(http.StatusPaymentRequired, types.PaymentRequired{
				X402Version: types.ProtocolVersion,
				Error:       decision.Reason,
				Accepts:     []types.PaymentRequirements{decision.Requirements},
			})
			return
		}

		buffered := &bufferedWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			statusCode:     http.StatusOK,
		}
		c.Writer = buffered
		c.Next()
		c.Writer = buffered.ResponseWriter

		// A failed action never charges the payer. The consumed proof is
		// not released; the caller signs a fresh one to retry.
		if buffered.statusCode >= http.StatusBadRequest {
			buffered.flush()
			return
		}

		settlement, err := g.Settle(c.Request.Context(), decision.Receipt)
		if err != nil {
			var settleErr *SettlementError
			reason := ReasonSettlementFailed
			if errors.As(err, &settleErr) && settleErr.Reason != "" {
				reason = settleErr.Reason
			}
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"error":  "settlement failed after execution",
				"reason": reason,
			})
			return
		}

		encoded, err := settlement.EncodeToBase64String()
		if err == nil {
			buffered.ResponseWriter.Header().Set(types.PaymentResponseHeader, encoded)
		}
		buffered.flush()
	}
}
