package model

// STKCallback is the envelope the gateway posts when a payment prompt resolves.
type STKCallback struct {
	Body *STKCallbackBody `json:"Body" validate:"required"`
}

type STKCallbackBody struct {
	StkCallback *STKCallbackResult `json:"stkCallback" validate:"required"`
}

type STKCallbackResult struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID" validate:"required"`
	ResultCode        *int              `json:"ResultCode" validate:"required"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values are numbers or strings depending on the item name.
type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

const CallbackItemReceipt = "MpesaReceiptNumber"

// Receipt returns the receipt number carried in the metadata, if any.
func (r *STKCallbackResult) Receipt() string {
	if r.CallbackMetadata == nil {
		return ""
	}
	for _, it := range r.CallbackMetadata.Item {
		if it.Name != CallbackItemReceipt {
			continue
		}
		if s, ok := it.Value.(string); ok {
			return s
		}
	}
	return ""
}

// CallbackAck is returned to the gateway for every well-formed callback.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
