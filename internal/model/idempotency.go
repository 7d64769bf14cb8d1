package model

import "time"

// IdempotencyRecord 缓存的响应，Processing 表示第一个请求仍在处理中
type IdempotencyRecord struct {
	Status     int       `json:"status"`
	Body       []byte    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	Processing bool      `json:"processing"`
}
