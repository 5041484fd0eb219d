package allowance

import "strings"

// Expense categories suggested for a description.
const (
	CategorySnacks     = "snacks"
	CategoryFood       = "food"
	CategoryToys       = "toys"
	CategoryBooks      = "books"
	CategoryStationery = "stationery"
	CategoryTransport  = "transport"
	CategoryGifts      = "gifts"
	CategoryGames      = "games"
)

// Categorize suggests an expense category from a free-text description:
// exact match first, then substring match. Unknown descriptions fall back to
// DefaultExpenseCategory.
func Categorize(description string) string {
	name := strings.ToLower(strings.TrimSpace(description))
	if name == "" {
		return DefaultExpenseCategory
	}

	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	for _, entry := range substringMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}

	return DefaultExpenseCategory
}

var exactMatch = map[string]string{
	"candy":     CategorySnacks,
	"chips":     CategorySnacks,
	"chocolate": CategorySnacks,
	"gum":       CategorySnacks,
	"ice cream": CategorySnacks,
	"과자":        CategorySnacks,
	"사탕":        CategorySnacks,
	"아이스크림":     CategorySnacks,
	"젤리":        CategorySnacks,

	"lunch":  CategoryFood,
	"dinner": CategoryFood,
	"pizza":  CategoryFood,
	"떡볶이":    CategoryFood,
	"김밥":     CategoryFood,
	"라면":     CategoryFood,
	"편의점":    CategoryFood,

	"lego": CategoryToys,
	"doll": CategoryToys,
	"장난감":  CategoryToys,
	"인형":   CategoryToys,

	"book":  CategoryBooks,
	"comic": CategoryBooks,
	"책":     CategoryBooks,
	"만화책":   CategoryBooks,

	"pencil":   CategoryStationery,
	"notebook": CategoryStationery,
	"eraser":   CategoryStationery,
	"연필":       CategoryStationery,
	"공책":       CategoryStationery,
	"지우개":      CategoryStationery,

	"bus":    CategoryTransport,
	"subway": CategoryTransport,
	"taxi":   CategoryTransport,
	"버스":     CategoryTransport,
	"지하철":    CategoryTransport,

	"present": CategoryGifts,
	"gift":    CategoryGifts,
	"선물":      CategoryGifts,

	"game":  CategoryGames,
	"게임":    CategoryGames,
	"pc방":   CategoryGames,
	"코인노래방": CategoryGames,
}

// substringMatches is ordered more specific first.
var substringMatches = []struct {
	keyword  string
	category string
}{
	{"birthday present", CategoryGifts},
	{"ice cream", CategorySnacks},
	{"bus card", CategoryTransport},
	{"교통카드", CategoryTransport},
	{"생일 선물", CategoryGifts},
	{"선물", CategoryGifts},
	{"gift", CategoryGifts},
	{"present", CategoryGifts},
	{"snack", CategorySnacks},
	{"candy", CategorySnacks},
	{"과자", CategorySnacks},
	{"아이스크림", CategorySnacks},
	{"떡볶이", CategoryFood},
	{"lunch", CategoryFood},
	{"burger", CategoryFood},
	{"편의점", CategoryFood},
	{"lego", CategoryToys},
	{"toy", CategoryToys},
	{"장난감", CategoryToys},
	{"comic", CategoryBooks},
	{"book", CategoryBooks},
	{"만화", CategoryBooks},
	{"문구", CategoryStationery},
	{"pencil", CategoryStationery},
	{"notebook", CategoryStationery},
	{"bus", CategoryTransport},
	{"subway", CategoryTransport},
	{"버스", CategoryTransport},
	{"지하철", CategoryTransport},
	{"game", CategoryGames},
	{"게임", CategoryGames},
	{"노래방", CategoryGames},
}
