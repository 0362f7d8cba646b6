package poolservice

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fyerfyer/embedpool/pool"
)

// FormatPoolInfo 返回连接池信息的格式化字符串表示
func FormatPoolInfo(info PoolInfo) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Pool: %s\n", info.ID))
	sb.WriteString(fmt.Sprintf("Type: %s\n", info.Type))
	sb.WriteString(fmt.Sprintf("Source: %s\n", info.Source))
	sb.WriteString(fmt.Sprintf("Connections: %d available, %d in use (max %d)\n",
		info.Stats.Available, info.Stats.InUse, info.Stats.MaxConnections))
	sb.WriteString(fmt.Sprintf("Created: %s\n", formatTimeAgo(info.Stats.CreatedAt)))
	if len(info.CheckedOut) > 0 {
		sb.WriteString(fmt.Sprintf("Checked out: %s\n", strings.Join(info.CheckedOut, ", ")))
	}

	return sb.String()
}

// FormatPoolStats 返回连接池统计信息的格式化字符串表示
func FormatPoolStats(stats pool.Stats) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Available: %d\n", stats.Available))
	sb.WriteString(fmt.Sprintf("In use: %d\n", stats.InUse))
	sb.WriteString(fmt.Sprintf("Total: %d", stats.Total))
	if stats.MaxConnections > 0 {
		sb.WriteString(fmt.Sprintf(" (max %d)", stats.MaxConnections))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Created: %s\n", formatTimeAgo(stats.CreatedAt)))
	sb.WriteString(fmt.Sprintf("Operations: %d acquired, %d released\n",
		stats.Acquired, stats.Released))
	sb.WriteString(fmt.Sprintf("Connections: %d opened, %d closed\n",
		stats.Created, stats.Closed))

	if stats.Replaced > 0 {
		sb.WriteString(fmt.Sprintf("Replaced: %d\n", stats.Replaced))
	}

	if stats.Errors > 0 {
		sb.WriteString(fmt.Sprintf("Connect failures: %d\n", stats.Errors))
	}

	if stats.ReaperRunning {
		sb.WriteString("Reaper: running\n")
	} else {
		sb.WriteString("Reaper: stopped\n")
	}

	return sb.String()
}

// FormatQueryResult 把查询结果格式化为对齐的表格
func FormatQueryResult(result QueryResult) string {
	var sb strings.Builder

	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()

	sb.WriteString(fmt.Sprintf("(%d rows)\n", len(result.Rows)))
	return sb.String()
}

// MarshalPoolInfos 将连接池信息序列化为 JSON
func MarshalPoolInfos(infos []PoolInfo) ([]byte, error) {
	return json.MarshalIndent(infos, "", "  ")
}

// formatTimeAgo 将时间格式化为人类可读的"多久之前"字符串
func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	seconds := int(duration.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%d seconds ago", seconds)
	}

	minutes := int(duration.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d minutes ago", minutes)
	}

	hours := int(duration.Hours())
	if hours < 24 {
		return fmt.Sprintf("%d hours ago", hours)
	}

	days := int(duration.Hours() / 24)
	return fmt.Sprintf("%d days ago", days)
}
