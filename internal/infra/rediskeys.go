package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных монитора в Redis
	RedisNamespace = "finesse"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanStateChange - канал, в который публикуются смены статусов агентов.
	RedisChanStateChange = RedisNamespace + ":agents:state-change"
)
