package gateway

import "fmt"

const ResultCodeSuccess = 0

var resultMessages = map[int]string{
	0:    "The service request is processed successfully.",
	1:    "The balance is insufficient for the transaction.",
	1001: "Unable to lock subscriber, a transaction is already in process for the current subscriber.",
	1019: "Transaction has expired.",
	1025: "An error occurred while sending the push request.",
	1032: "Request cancelled by user.",
	1037: "The phone could not be reached.",
	2001: "The initiator information is invalid.",
	9999: "An error occurred while sending the push request.",
}

// DescribeResultCode maps a provider result code to a fixed human readable message.
func DescribeResultCode(code int) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Payment failed with code %d", code)
}
