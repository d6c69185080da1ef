package apierror

// Message is a catalog entry. Description may contain %s verbs that are
// filled from the data passed to HandleException.
type Message struct {
	Code        string
	Message     string
	Description string
}

var (
	MsgRegisterDevice = Message{
		Code:        "PDM-10001",
		Message:     "Error registering the device.",
		Description: "The device registration request could not be completed.",
	}
	MsgUnregisterDevice = Message{
		Code:        "PDM-10002",
		Message:     "Error removing the device.",
		Description: "Device %s could not be removed.",
	}
	MsgEditDevice = Message{
		Code:        "PDM-10003",
		Message:     "Error updating the device.",
		Description: "Device %s could not be updated.",
	}
	MsgGetDevice = Message{
		Code:        "PDM-10004",
		Message:     "Error retrieving the device.",
		Description: "Device %s could not be retrieved.",
	}
	MsgListDevices = Message{
		Code:        "PDM-10005",
		Message:     "Error listing devices.",
		Description: "The registered devices of the user could not be listed.",
	}
	MsgDiscoveryData = Message{
		Code:        "PDM-10006",
		Message:     "Error generating discovery data.",
		Description: "Registration discovery data could not be generated.",
	}
	MsgUserStore = Message{
		Code:        "PDM-15001",
		Message:     "User store error.",
		Description: "The authenticated user could not be resolved from the user store.",
	}
	MsgUnauthenticated = Message{
		Code:        "PDM-10401",
		Message:     "Unauthenticated request.",
		Description: "The request does not carry a valid session.",
	}
	MsgInvalidRequest = Message{
		Code:        "PDM-10400",
		Message:     "Invalid request.",
		Description: "%s",
	}
	MsgInternal = Message{
		Code:        "PDM-15000",
		Message:     "Internal server error.",
		Description: "The server failed to process the request.",
	}
	MsgRateLimited = Message{
		Code:        "PDM-10429",
		Message:     "Rate limit exceeded.",
		Description: "Too many requests, retry later.",
	}
)
