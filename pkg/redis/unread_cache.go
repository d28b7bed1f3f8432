package redis

import (
	"fmt"
	"strconv"
	"time"
)

// 未读汇总缓存相关常量
// 缓存的是按数据库计算出的未读总数，数据库是唯一事实来源
// 发送消息/标记已读时失效对应用户的缓存，下一次查询重新计算并回填
const (
	TotalUnreadKeyPrefix = "portal:unread:total:" // 未读总数缓存key前缀
	totalUnreadTTL       = 10 * time.Minute       // 缓存TTL
)

// GetCachedTotalUnread 获取缓存的未读总数
// 第二个返回值表示是否命中
func GetCachedTotalUnread(userID uint) (int64, bool, error) {
	if client == nil {
		return 0, false, fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf("%s%d", TotalUnreadKeyPrefix, userID)

	result, err := client.Get(ctx, key).Result()
	if err != nil {
		// key不存在视为未命中
		if err.Error() == "redis: nil" {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("获取未读总数缓存失败: %w", err)
	}

	count, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("解析未读总数缓存失败: %w", err)
	}

	return count, true, nil
}

// SetCachedTotalUnread 回填未读总数缓存
func SetCachedTotalUnread(userID uint, count int64) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf("%s%d", TotalUnreadKeyPrefix, userID)

	if err := client.Set(ctx, key, count, totalUnreadTTL).Err(); err != nil {
		return fmt.Errorf("设置未读总数缓存失败: %w", err)
	}

	return nil
}

// InvalidateTotalUnread 批量失效未读总数缓存
// 发送消息后对所有接收成员调用，标记已读后对本人调用
func InvalidateTotalUnread(userIDs ...uint) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	if len(userIDs) == 0 {
		return nil
	}

	// 使用Pipeline批量删除
	pipe := client.Pipeline()
	for _, userID := range userIDs {
		key := fmt.Sprintf("%s%d", TotalUnreadKeyPrefix, userID)
		pipe.Del(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("批量失效未读总数缓存失败: %w", err)
	}

	return nil
}
