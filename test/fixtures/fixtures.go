package fixtures

import (
	"encoding/json"

	"github.com/nimasrn/matatu-pay/internal/model"
)

const (
	VehicleCode = "3025"
	Phone       = "254712345678"
	Receipt     = "QK12AB34CD"
)

var (
	ValidPhones = map[string]string{
		"0712345678":   "254712345678",
		"712345678":    "254712345678",
		"254712345678": "254712345678",
		"0112345678":   "254112345678",
	}

	InvalidPhones = []string{
		"",
		"999",
		"0812345678",
		"abc",
	}
)

func PaymentRequest(amount int64) model.PaymentRequest {
	return model.PaymentRequest{
		VehicleCode: VehicleCode,
		Phone:       Phone,
		Amount:      amount,
	}
}

// SuccessCallback is the payload the gateway posts after the payer confirms.
func SuccessCallback(checkoutID string, amount int64) []byte {
	return Callback(checkoutID, 0, "The service request is processed successfully.", []model.CallbackItem{
		{Name: "Amount", Value: amount},
		{Name: model.CallbackItemReceipt, Value: Receipt},
		{Name: "TransactionDate", Value: 20250314092653},
		{Name: "PhoneNumber", Value: 254712345678},
	})
}

func FailedCallback(checkoutID string, code int, desc string) []byte {
	return Callback(checkoutID, code, desc, nil)
}

func Callback(checkoutID string, code int, desc string, items []model.CallbackItem) []byte {
	res := &model.STKCallbackResult{
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        &code,
		ResultDesc:        desc,
	}
	if items != nil {
		res.CallbackMetadata = &model.CallbackMetadata{Item: items}
	}
	b, _ := json.Marshal(model.STKCallback{Body: &model.STKCallbackBody{StkCallback: res}})
	return b
}
