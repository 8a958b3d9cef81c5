package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"shoptrend/internal/model"
)

// keywordHashLen 关键词哈希截取长度（十六进制字符）
const keywordHashLen = 16

// Query 描述一次可缓存的读请求
//
// 同一组参数无论以何种顺序构造，Fingerprint 都相同。
type Query struct {
	Keyword string
	Type    model.AggregationType
	Filters map[string]string
	Sort    string
	Page    int
	Size    int
}

// NewQuery 创建查询
func NewQuery(keyword string, typ model.AggregationType) Query {
	return Query{Keyword: keyword, Type: typ}
}

// With 追加一个过滤条件，返回新的 Query
func (q Query) With(key, value string) Query {
	filters := make(map[string]string, len(q.Filters)+1)
	for k, v := range q.Filters {
		filters[k] = v
	}
	filters[key] = value
	q.Filters = filters
	return q
}

// SortBy 设置排序字段
func (q Query) SortBy(sort string) Query {
	q.Sort = sort
	return q
}

// Paged 设置分页
func (q Query) Paged(page, size int) Query {
	q.Page = page
	q.Size = size
	return q
}

// Canonical 规范化字符串：关键词小写去空格，过滤键小写后按字典序排列，空值丢弃，最后追加排序与分页
//
// 关键词、过滤键值与排序字段都经 strconv.Quote 编码，分隔符出现在取值中时不会与其他过滤条件混淆。
func (q Query) Canonical() string {
	var b strings.Builder
	b.WriteString("kw=")
	b.WriteString(strconv.Quote(normalize(q.Keyword)))

	filters := make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		k = normalize(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		filters[k] = v
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(strconv.Quote(k))
		b.WriteString("=")
		b.WriteString(strconv.Quote(filters[k]))
	}

	b.WriteString("|sort=")
	b.WriteString(strconv.Quote(strings.TrimSpace(q.Sort)))
	b.WriteString("|page=")
	b.WriteString(strconv.Itoa(q.Page))
	b.WriteString("|size=")
	b.WriteString(strconv.Itoa(q.Size))
	return b.String()
}

// Fingerprint 规范化字符串的 SHA-256
func (q Query) Fingerprint() string {
	sum := sha256.Sum256([]byte(q.Canonical()))
	return hex.EncodeToString(sum[:])
}

// KeywordHash 关键词的短哈希，用于缓存 key 中的关键词段
func KeywordHash(keyword string) string {
	sum := sha256.Sum256([]byte(normalize(keyword)))
	return hex.EncodeToString(sum[:])[:keywordHashLen]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func typeSegment(t model.AggregationType) string {
	if t == "" {
		return "ANY"
	}
	return strings.ToUpper(string(t))
}
