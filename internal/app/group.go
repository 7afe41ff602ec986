package app

import (
	"errors"
	"fmt"
	"sort"

	"github.com/John-Robertt/BRCal/internal/domain"
	"github.com/John-Robertt/BRCal/internal/title"
)

// ErrDuplicateURL 表示同一 URL 出现了两次；URL 是最终的排序键，此时无法给出确定结果。
var ErrDuplicateURL = errors.New("重复的 URL")

// DuplicateGroup 是标题键相同的一组条目（Members 为 items 下标，已按优先级排序，首个为 canonical）。
type DuplicateGroup struct {
	Key     string
	Members []int
}

// Resolution 是去重的结果。Groups 只包含成员数 > 1 的组。
type Resolution struct {
	Groups     []DuplicateGroup
	Duplicates int
}

// ResolveDuplicates 按标题键分组，并在每组内选出唯一的 canonical 条目。
//
// - 组内排序：分类优先级升序（无排名最后）→ 发行日期升序（无日期最后）→ URL 升序
// - 非 canonical 条目：Canonical=false，DuplicateOf=canonical 的 URL
// - 不删除任何条目；单成员组只设置 Canonical=true
// - 结果与 items 的输入顺序无关
func ResolveDuplicates(items []domain.Item, prio domain.Priorities) (Resolution, error) {
	seenURL := make(map[string]struct{}, len(items))
	index := make(map[string]int, len(items))
	groups := make([]DuplicateGroup, 0, len(items))

	for i := range items {
		if _, dup := seenURL[items[i].URL]; dup {
			return Resolution{}, fmt.Errorf("%w：%s", ErrDuplicateURL, items[i].URL)
		}
		seenURL[items[i].URL] = struct{}{}

		k := title.KeyOrURL(items[i].Title, items[i].URL)
		if gi, ok := index[k]; ok {
			groups[gi].Members = append(groups[gi].Members, i)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, DuplicateGroup{Key: k, Members: []int{i}})
	}

	res := Resolution{Groups: make([]DuplicateGroup, 0, 8)}
	for _, g := range groups {
		first := g.Members[0]
		items[first].Canonical = true
		items[first].DuplicateOf = ""
		if len(g.Members) == 1 {
			continue
		}

		sort.Slice(g.Members, func(a, b int) bool {
			return preferred(items[g.Members[a]], items[g.Members[b]], prio)
		})
		canon := items[g.Members[0]]
		for n, idx := range g.Members {
			if n == 0 {
				items[idx].Canonical = true
				items[idx].DuplicateOf = ""
				continue
			}
			items[idx].Canonical = false
			items[idx].DuplicateOf = canon.URL
			res.Duplicates++
		}
		res.Groups = append(res.Groups, g)
	}

	sort.Slice(res.Groups, func(i, j int) bool { return res.Groups[i].Key < res.Groups[j].Key })
	return res, nil
}

// preferred 判断 a 是否应排在 b 之前。
func preferred(a, b domain.Item, prio domain.Priorities) bool {
	ra, okA := prio.Rank(a.Category)
	rb, okB := prio.Rank(b.Category)
	if okA != okB {
		return okA
	}
	if okA && ra != rb {
		return ra < rb
	}

	if a.HasDate() != b.HasDate() {
		return a.HasDate()
	}
	if a.HasDate() && !a.ReleaseDate.Equal(b.ReleaseDate) {
		return a.ReleaseDate.Before(b.ReleaseDate)
	}
	return a.URL < b.URL
}
