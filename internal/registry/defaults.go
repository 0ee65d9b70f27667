package registry

const (
	defaultKeywordCap     = 5
	defaultRegularUserMax = 100000
)

// Default returns the built-in profile set. Currently Japanese only; add
// profiles via a YAML file for other markets.
func Default() (*Registry, error) {
	return New([]*Profile{japaneseProfile()})
}

func japaneseProfile() *Profile {
	return &Profile{
		Language: "ja",
		Region:   "JP",
		Scripts:  []string{"Hiragana", "Katakana", "Han"},
		RegionKeywords: []string{
			"日本", "にほん", "ニッポン", "東京", "大阪", "京都",
			"渋谷", "新宿", "原宿", "秋葉原", "アニメ", "マンガ",
			"ラーメン", "寿司", "居酒屋", "コンビニ", "電車",
			"JR", "地下鉄", "駅", "神社", "寺", "桜", "紅葉",
		},
		ExcludeKeywords: []string{
			"tourist", "travel", "visit", "vacation", "trip",
			"foreigner", "gaijin", "english", "korean", "chinese",
			"study abroad", "exchange student", "backpacker",
		},
		SpamPatterns: []string{
			`[!]{5,}`,
			`[?]{5,}`,
			`[wｗ]{10,}`, // laugh-spam runs
			`[ー〜]{8,}`,
			`www\.`,
			`http`,
		},
		KeywordCap:     defaultKeywordCap,
		RegularUserMax: defaultRegularUserMax,
	}
}
