package model

// Reserved AppStore keys (model.AppData in spec terms).
const (
	AppDataDeviceId                 = "device_id"
	AppDataLastNotificationId       = "last_notification_id"
	AppDataShouldRejoinConversations = "should_rejoin_conversations"
)
