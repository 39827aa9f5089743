package telecom

import "strconv"

// Direction is the call direction code carried in call stats.
type Direction int32

const (
	DirectionUnknown Direction = iota
	DirectionIncoming
	DirectionOutgoing
)

var directionNames = map[Direction]string{
	DirectionUnknown:  "unknown",
	DirectionIncoming: "incoming",
	DirectionOutgoing: "outgoing",
}

func (d Direction) String() string { return codeName(directionNames, d) }

func (d Direction) normalize() Direction { return bucket(directionNames, d, DirectionUnknown) }

// AccountType classifies the phone account a call was placed through.
type AccountType int32

const (
	AccountUnknown AccountType = iota
	AccountManaged
	AccountSelfManaged
	AccountSIM
	AccountVoIPAPI
)

var accountNames = map[AccountType]string{
	AccountUnknown:     "unknown",
	AccountManaged:     "managed",
	AccountSelfManaged: "self_managed",
	AccountSIM:         "sim",
	AccountVoIPAPI:     "voip_api",
}

func (a AccountType) String() string { return codeName(accountNames, a) }

func (a AccountType) normalize() AccountType { return bucket(accountNames, a, AccountUnknown) }

// Capability is a phone account capability bit.
type Capability uint32

const (
	CapabilityCallProvider Capability = 1 << iota
	CapabilitySIMSubscription
	CapabilitySelfManaged
	CapabilityTransactional
)

// Has reports whether every bit in want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// AccountTypeOf derives the account type from account capabilities.
// Self-managed accounts win over call providers.
func AccountTypeOf(capabilities Capability) AccountType {
	switch {
	case capabilities.Has(CapabilitySelfManaged):
		if capabilities.Has(CapabilityTransactional) {
			return AccountVoIPAPI
		}

		return AccountSelfManaged
	case capabilities.Has(CapabilityCallProvider):
		if capabilities.Has(CapabilitySIMSubscription) {
			return AccountSIM
		}

		return AccountManaged
	default:
		return AccountUnknown
	}
}

// RouteCode is the audio route code carried in route stats, for both
// source and destination.
type RouteCode int32

const (
	RouteUnspecified RouteCode = iota
	RouteEarpiece
	RouteWiredHeadset
	RouteSpeaker
	RouteBluetooth
	RouteBluetoothLE
	RouteHearingAid
	RouteWatchSpeaker
)

var routeNames = map[RouteCode]string{
	RouteUnspecified:  "unspecified",
	RouteEarpiece:     "earpiece",
	RouteWiredHeadset: "wired_headset",
	RouteSpeaker:      "speaker",
	RouteBluetooth:    "bluetooth",
	RouteBluetoothLE:  "bluetooth_le",
	RouteHearingAid:   "hearing_aid",
	RouteWatchSpeaker: "watch_speaker",
}

func (r RouteCode) String() string { return codeName(routeNames, r) }

func (r RouteCode) normalize() RouteCode { return bucket(routeNames, r, RouteUnspecified) }

// RouteType is the audio route kind reported by the routing subsystem.
type RouteType int

const (
	RouteTypeInvalid RouteType = iota
	RouteTypeEarpiece
	RouteTypeWired
	RouteTypeSpeaker
	RouteTypeDock
	RouteTypeBluetoothSCO
	RouteTypeBluetoothHA
	RouteTypeBluetoothLE
	RouteTypeStreaming
)

// AudioRoute is one end of a route change.
type AudioRoute struct {
	Type RouteType
	// Watch is set for a Bluetooth SCO route to a watch.
	Watch bool
}

// PendingRoute is a route change as seen by the routing subsystem. A nil
// end converts to RouteUnspecified.
type PendingRoute struct {
	Orig *AudioRoute
	Dest *AudioRoute
}

// RouteCodeOf converts a route to its stats code. Dock and streaming
// routes have no code yet and are unspecified.
func RouteCodeOf(route *AudioRoute) RouteCode {
	if route == nil {
		return RouteUnspecified
	}

	switch route.Type {
	case RouteTypeEarpiece:
		return RouteEarpiece
	case RouteTypeWired:
		return RouteWiredHeadset
	case RouteTypeSpeaker:
		return RouteSpeaker
	case RouteTypeBluetoothLE:
		return RouteBluetoothLE
	case RouteTypeBluetoothSCO:
		if route.Watch {
			return RouteWatchSpeaker
		}

		return RouteBluetooth
	case RouteTypeBluetoothHA:
		return RouteHearingAid
	default:
		return RouteUnspecified
	}
}

// APIName identifies an instrumented public API.
type APIName int32

const (
	APIUnspecified APIName = iota
	APIAcceptRingingCall
	APIAddCall
	APIAddNewIncomingCall
	APIAddNewUnknownCall
	APICancelMissedCallsNotification
	APIClearAccounts
	APIEndCall
	APIGetCallCapablePhoneAccounts
	APIGetDefaultDialerPackage
	APIGetPhoneAccount
	APIHandlePinMMI
	APIIsInCall
	APIIsInEmergencyCall
	APIIsRinging
	APIPlaceCall
	APIRegisterPhoneAccount
	APISetDefaultDialer
	APIShowInCallScreen
	APISilenceRinger
	APIUnregisterPhoneAccount
)

var apiNames = map[APIName]string{
	APIUnspecified:                   "unspecified",
	APIAcceptRingingCall:             "accept_ringing_call",
	APIAddCall:                       "add_call",
	APIAddNewIncomingCall:            "add_new_incoming_call",
	APIAddNewUnknownCall:             "add_new_unknown_call",
	APICancelMissedCallsNotification: "cancel_missed_calls_notification",
	APIClearAccounts:                 "clear_accounts",
	APIEndCall:                       "end_call",
	APIGetCallCapablePhoneAccounts:   "get_call_capable_phone_accounts",
	APIGetDefaultDialerPackage:       "get_default_dialer_package",
	APIGetPhoneAccount:               "get_phone_account",
	APIHandlePinMMI:                  "handle_pin_mmi",
	APIIsInCall:                      "is_in_call",
	APIIsInEmergencyCall:             "is_in_emergency_call",
	APIIsRinging:                     "is_ringing",
	APIPlaceCall:                     "place_call",
	APIRegisterPhoneAccount:          "register_phone_account",
	APISetDefaultDialer:              "set_default_dialer",
	APIShowInCallScreen:              "show_in_call_screen",
	APISilenceRinger:                 "silence_ringer",
	APIUnregisterPhoneAccount:        "unregister_phone_account",
}

func (a APIName) String() string { return codeName(apiNames, a) }

func (a APIName) normalize() APIName { return bucket(apiNames, a, APIUnspecified) }

// APIResult is the outcome of an API call.
type APIResult int32

const (
	ResultUnspecified APIResult = iota
	ResultSuccess
	ResultPermission
	ResultException
)

var resultNames = map[APIResult]string{
	ResultUnspecified: "unspecified",
	ResultSuccess:     "success",
	ResultPermission:  "permission",
	ResultException:   "exception",
}

func (r APIResult) String() string { return codeName(resultNames, r) }

func (r APIResult) normalize() APIResult { return bucket(resultNames, r, ResultUnspecified) }

// SubModule identifies the component an error was reported from.
type SubModule int32

const (
	ModuleUnknown SubModule = iota
	ModuleCallAudio
	ModuleCallLogs
	ModuleCallsManager
	ModuleConnectionService
	ModuleEmergencyCall
	ModuleInCallService
	ModuleMisc
	ModulePhoneAccount
	ModuleSystemService
	ModuleTelephony
	ModuleUI
	ModuleVoIPCall
)

var moduleNames = map[SubModule]string{
	ModuleUnknown:           "unknown",
	ModuleCallAudio:         "call_audio",
	ModuleCallLogs:          "call_logs",
	ModuleCallsManager:      "calls_manager",
	ModuleConnectionService: "connection_service",
	ModuleEmergencyCall:     "emergency_call",
	ModuleInCallService:     "in_call_service",
	ModuleMisc:              "misc",
	ModulePhoneAccount:      "phone_account",
	ModuleSystemService:     "system_service",
	ModuleTelephony:         "telephony",
	ModuleUI:                "ui",
	ModuleVoIPCall:          "voip_call",
}

func (m SubModule) String() string { return codeName(moduleNames, m) }

func (m SubModule) normalize() SubModule { return bucket(moduleNames, m, ModuleUnknown) }

// ErrorName identifies a reported error.
type ErrorName int32

const (
	ErrorUnknown ErrorName = iota
	ErrorAudioRouteRetryRejected
	ErrorBluetoothDeviceNotFound
	ErrorCallLoggingFailed
	ErrorCallNotFound
	ErrorDialerBindTimeout
	ErrorDuplicateCallID
	ErrorEmergencyNumberDetermined
	ErrorExternalException
	ErrorIncomingCallFilterTimeout
	ErrorInvalidPhoneAccount
	ErrorRemoteException
	ErrorServiceBindFailed
	ErrorStuckConnectingCall
	ErrorStuckDisconnectingCall
)

var errorNames = map[ErrorName]string{
	ErrorUnknown:                   "unknown",
	ErrorAudioRouteRetryRejected:   "audio_route_retry_rejected",
	ErrorBluetoothDeviceNotFound:   "bluetooth_device_not_found",
	ErrorCallLoggingFailed:         "call_logging_failed",
	ErrorCallNotFound:              "call_not_found",
	ErrorDialerBindTimeout:         "dialer_bind_timeout",
	ErrorDuplicateCallID:           "duplicate_call_id",
	ErrorEmergencyNumberDetermined: "emergency_number_determined",
	ErrorExternalException:         "external_exception",
	ErrorIncomingCallFilterTimeout: "incoming_call_filter_timeout",
	ErrorInvalidPhoneAccount:       "invalid_phone_account",
	ErrorRemoteException:           "remote_exception",
	ErrorServiceBindFailed:         "service_bind_failed",
	ErrorStuckConnectingCall:       "stuck_connecting_call",
	ErrorStuckDisconnectingCall:    "stuck_disconnecting_call",
}

func (e ErrorName) String() string { return codeName(errorNames, e) }

func (e ErrorName) normalize() ErrorName { return bucket(errorNames, e, ErrorUnknown) }

// bucket maps a code outside the enumeration to the unspecified value.
func bucket[C comparable](names map[C]string, code, unspecified C) C {
	if _, ok := names[code]; ok {
		return code
	}

	return unspecified
}

func codeName[C ~int32](names map[C]string, code C) string {
	if name, ok := names[code]; ok {
		return name
	}

	return strconv.Itoa(int(code))
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}

	return 0
}
