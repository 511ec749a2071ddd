package model

import "time"

// Epoch 是“从未摘要过”的游标哨兵值，首次摘要会覆盖全部历史消息。
var Epoch = time.Unix(0, 0).UTC()

// Instant 把时间规范化为 UTC 毫秒精度（与 MySQL datetime(3) 一致），所有落库的时间都经过它处理。
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
