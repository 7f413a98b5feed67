package intent

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bdobrica/Hibiki/internal/hibiki/lexicon"
)

// field is one parameter a rule always produces.
type field struct {
	key string
	def any
}

// rule extracts the parameters of one or more actions. fn sets the values it
// can find; Extract fills the rest from the field defaults.
type rule struct {
	fields []field
	fn     func(e *Extractor, text string, out *Params)
}

// Extractor pulls action parameters out of normalised text. It is read-only
// after construction and safe for concurrent use.
type Extractor struct {
	apps      []string
	websites  []lexicon.Website
	protocols []lexicon.Protocol
	rules     map[string]rule
}

// NewExtractor binds the extraction rules to the table's curated lists.
func NewExtractor(lx *lexicon.Lexicon) *Extractor {
	e := &Extractor{
		apps:      lx.Apps(),
		websites:  lx.Websites(),
		protocols: lx.Protocols(),
	}
	e.rules = extractionRules()
	return e
}

// Keys lists the parameter names action always carries, nil for actions
// without a rule.
func (e *Extractor) Keys(action string) []string {
	r, ok := e.rules[action]
	if !ok {
		return nil
	}
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.key
	}
	return keys
}

// Actions lists the actions that have an extraction rule, sorted.
func (e *Extractor) Actions() []string {
	out := make([]string, 0, len(e.rules))
	for a := range e.rules {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Extract returns the parameters of action found in text. Every key of the
// action's rule is present; missing values take the rule default. Actions
// without a rule yield empty Params.
func (e *Extractor) Extract(action, text string) Params {
	r, ok := e.rules[action]
	if !ok {
		return Params{}
	}
	var found Params
	r.fn(e, text, &found)

	var out Params
	for _, f := range r.fields {
		if v, ok := found.Get(f.key); ok {
			out.Set(f.key, v)
			continue
		}
		slog.Debug("intent: extraction defaulted", "action", action, "key", f.key)
		out.Set(f.key, cloneDefault(f.def))
	}
	return out
}

func cloneDefault(v any) any {
	if list, ok := v.([]string); ok {
		cp := make([]string, len(list))
		copy(cp, list)
		return cp
	}
	return v
}

func extractionRules() map[string]rule {
	appRule := rule{fields: []field{{"app_name", "notepad"}}, fn: (*Extractor).appName}
	queryRule := rule{fields: []field{{"query", "python"}}, fn: (*Extractor).searchQuery}
	pathRule := rule{fields: []field{{"file_path", ""}}, fn: (*Extractor).filePath}
	promptRule := rule{fields: []field{{"prompt", "future city cyberpunk"}}, fn: (*Extractor).mediaPrompt}

	return map[string]rule{
		"open_app":  appRule,
		"close_app": appRule,
		"focus_app": appRule,
		"write_in_app": {
			fields: []field{{"app_name", "notepad"}, {"text", ""}},
			fn:     (*Extractor).writeInApp,
		},
		"open_website":        {fields: []field{{"url", "https://www.google.com"}}, fn: (*Extractor).website},
		"search_google":       queryRule,
		"google_search_click": queryRule,
		"youtube_search":      queryRule,
		"send_telegram_message": {
			fields: []field{{"contact", "Unknown"}, {"message", defaultTelegramMessage}},
			fn:     (*Extractor).telegram,
		},
		"type_text":    {fields: []field{{"text", ""}}, fn: (*Extractor).typedText},
		"press_key":    {fields: []field{{"key", "enter"}}, fn: (*Extractor).key},
		"press_hotkey": {fields: []field{{"keys", []string{"enter"}}}, fn: (*Extractor).hotkey},
		"move_cursor":  {fields: []field{{"x", 0}, {"y", 0}}, fn: (*Extractor).coordinates},
		"click_mouse":  {fields: []field{{"button", "left"}}, fn: (*Extractor).mouseButton},
		"scroll_mouse": {fields: []field{{"amount", 300}}, fn: (*Extractor).scroll},
		"set_volume":   {fields: []field{{"level", 50}}, fn: (*Extractor).level},
		"create_folder": {
			fields: []field{{"folder_name", "new_folder"}},
			fn:     (*Extractor).folderName,
		},
		"delete_file":            pathRule,
		"open_file":              pathRule,
		"start_screen_recording": {fields: []field{{"duration", 1}}, fn: (*Extractor).duration},
		"protocol":               {fields: []field{{"name", "good_morning"}}, fn: (*Extractor).protocolName},
		"schedule": {
			fields: []field{{"time", "09:00"}, {"sub_action", ""}},
			fn:     (*Extractor).schedule,
		},
		"timer": {
			fields: []field{{"minutes", 1}, {"seconds", 0}, {"sub_action", ""}},
			fn:     (*Extractor).timer,
		},
		"speak":            {fields: []field{{"text", ""}}, fn: (*Extractor).speech},
		"generate_image":   promptRule,
		"generate_video":   promptRule,
		"perform_research": {fields: []field{{"topic", "AI trends 2026"}}, fn: (*Extractor).topic},
		"add_expense": {
			fields: []field{{"amount", 0}, {"description", ""}},
			fn:     (*Extractor).expense,
		},
		"connect_account":     {fields: []field{{"platform", "general"}}, fn: (*Extractor).platform},
		"play_music":          {fields: []field{{"song", "Best songs 2026"}}, fn: (*Extractor).song},
		"get_weather":         {fields: []field{{"city", "Tashkent"}}, fn: (*Extractor).city},
		"get_crypto_price":    {fields: []field{{"symbol", "bitcoin"}}, fn: (*Extractor).cryptoSymbol},
		"get_stock_price":     {fields: []field{{"symbol", "AAPL"}}, fn: (*Extractor).stockSymbol},
		"learn_from_feedback": {fields: []field{{"feedback", ""}}, fn: (*Extractor).feedback},
	}
}

const defaultTelegramMessage = "Salom, siz bilan bog'lanmoqchi edim."

// ── helpers ──────────────────────────────────────────────────────────────────

// stripper removes phrases from text, longest first.
type stripper []string

func newStripper(phrases ...string) stripper {
	s := append(stripper(nil), phrases...)
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return s
}

func (s stripper) strip(text string) string {
	for _, p := range s {
		text = strings.ReplaceAll(text, p, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}

// containsWord reports whether phrase occurs in text on word boundaries.
// Boundaries are spaces, so it works for Cyrillic and apostrophes.
func containsWord(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// trimTokens drops leading and trailing tokens found in set.
func trimTokens(text string, set map[string]bool) string {
	toks := strings.Fields(text)
	for len(toks) > 0 && set[toks[0]] {
		toks = toks[1:]
	}
	for len(toks) > 0 && set[toks[len(toks)-1]] {
		toks = toks[:len(toks)-1]
	}
	return strings.Join(toks, " ")
}

func tokenSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var digitsRe = regexp.MustCompile(`\d+`)

func firstNumber(text string) (int, bool) {
	m := digitsRe.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}

// ── applications ─────────────────────────────────────────────────────────────

var appStopWords = tokenSet(
	"och", "ochib", "ber", "ishga", "tushir", "yurgiz", "yop", "yopib", "kill", "qil",
	"oldinga", "ol", "focus", "ekranga", "chiqar", "iltimos", "dasturini", "dasturni",
	"ilovani", "open", "launch", "start", "close", "quit", "exit", "switch", "to",
	"bring", "front", "the", "app", "application", "please",
	"открой", "запусти", "закрой", "останови", "приложение",
)

func (e *Extractor) curatedApp(text string) (string, bool) {
	joined := strings.ReplaceAll(text, " ", "_")
	for _, app := range e.apps {
		if strings.Contains(joined, app) || strings.Contains(text, strings.ReplaceAll(app, "_", " ")) {
			return app, true
		}
	}
	return "", false
}

func (e *Extractor) appName(text string, out *Params) {
	if app, ok := e.curatedApp(text); ok {
		out.Set("app_name", app)
		return
	}
	for _, tok := range strings.Fields(text) {
		if appStopWords[tok] {
			continue
		}
		// Uzbek accusative: "skypeni och".
		if len([]rune(tok)) > 4 {
			tok = strings.TrimSuffix(tok, "ni")
		}
		out.Set("app_name", tok)
		return
	}
}

var (
	writeInRe   = regexp.MustCompile(`(?:write|type)\s+in(?:to)?\s+\S+\s+(.+)$`)
	writeUzRe   = regexp.MustCompile(`^\S+da\s+yoz\s+(.+)$`)
	writeUzOVRe = regexp.MustCompile(`^\S+da\s+(.+?)\s+(?:deb\s+)?yoz$`)
	writeRuRe   = regexp.MustCompile(`напиши\s+в\s+\S+\s+(.+)$`)
)

func (e *Extractor) writeInApp(text string, out *Params) {
	if app, ok := e.curatedApp(text); ok {
		out.Set("app_name", app)
	}
	for _, re := range []*regexp.Regexp{writeInRe, writeUzRe, writeUzOVRe, writeRuRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			out.Set("text", strings.TrimSpace(m[1]))
			return
		}
	}
}

// ── web ──────────────────────────────────────────────────────────────────────

var domainRe = regexp.MustCompile(`(?:https?://)?(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/\S*)?`)

func (e *Extractor) website(text string, out *Params) {
	for _, w := range e.websites {
		if strings.Contains(text, w.Name) {
			out.Set("url", w.URL)
			return
		}
	}
	if m := domainRe.FindString(text); m != "" {
		if !strings.HasPrefix(m, "http://") && !strings.HasPrefix(m, "https://") {
			m = "https://" + m
		}
		out.Set("url", m)
	}
}

var searchPhrases = newStripper(
	"google'dan", "google dan", "googledan", "google'da", "google da", "googleda",
	"youtube'dan", "youtube dan", "youtubedan", "youtube'da", "youtube da", "youtubeda",
	"yutubdan", "yutubda", "internetdan", "qidirib ber", "izlab ber", "qidiruv", "qidir",
	"search on youtube", "search youtube", "search google", "google search", "youtube search",
	"google and click", "search and open", "search for", "search", "google", "youtube",
	"найди в гугле", "найди на ютубе", "поиск", "гугл", "ютуб", "найди",
)

func (e *Extractor) searchQuery(text string, out *Params) {
	if q := searchPhrases.strip(text); q != "" {
		out.Set("query", q)
	}
}

// ── messaging ────────────────────────────────────────────────────────────────

var (
	telegramToRe    = regexp.MustCompile(`\bto\s+([^\s:,]+)\s*[:,]?\s*(.*)$`)
	telegramPhrases = newStripper("deb xabar yubor", "xabar yubor", "yozib yubor", "deb yoz", "yoz")
	telegramWords   = tokenSet("telegram", "telegramda", "telegramdan", "telegramga", "send", "message", "on", "via")
)

func (e *Extractor) telegram(text string, out *Params) {
	if m := telegramToRe.FindStringSubmatch(text); m != nil {
		out.Set("contact", titleCase(m[1]))
		if msg := strings.TrimSpace(m[2]); msg != "" {
			out.Set("message", msg)
		}
		return
	}
	toks := strings.Fields(text)
	for i, tok := range toks {
		if telegramWords[tok] || !strings.HasSuffix(tok, "ga") || len(tok) <= 2 {
			continue
		}
		out.Set("contact", titleCase(strings.TrimSuffix(tok, "ga")))
		rest := strings.Join(toks[i+1:], " ")
		if msg := trimTokens(telegramPhrases.strip(rest), telegramWords); msg != "" {
			out.Set("message", msg)
		}
		return
	}
}

var speechRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:say|speak|announce)\s+(.+)$`),
	regexp.MustCompile(`(?:gapirib ber|ovoz chiqarib ayt)\s+(.+)$`),
	regexp.MustCompile(`^(.+?)\s+deb\s+ayt`),
	regexp.MustCompile(`скажи\s+(.+)$`),
}

func (e *Extractor) speech(text string, out *Params) {
	for _, re := range speechRes {
		if m := re.FindStringSubmatch(text); m != nil {
			out.Set("text", strings.TrimSpace(m[1]))
			return
		}
	}
}

// ── input ────────────────────────────────────────────────────────────────────

var typedRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:matn\s+)?yoz(?:ib\s+ber)?\s+(.+)$`),
	regexp.MustCompile(`^(.+?)\s+(?:deb\s+)?yoz(?:ib\s+ber)?$`),
	regexp.MustCompile(`(?:type|write)\s+(.+)$`),
	regexp.MustCompile(`напиши\s+(.+)$`),
}

func (e *Extractor) typedText(text string, out *Params) {
	if text == "" {
		return
	}
	for _, re := range typedRes {
		if m := re.FindStringSubmatch(text); m != nil {
			out.Set("text", strings.TrimSpace(m[1]))
			return
		}
	}
	out.Set("text", text)
}

var keyNames = []struct{ word, key string }{
	{"enter", "enter"},
	{"probel", "space"},
	{"space", "space"},
	{"backspace", "backspace"},
	{"escape", "esc"},
	{"esc", "esc"},
	{"tab", "tab"},
	{"delete", "delete"},
}

func (e *Extractor) key(text string, out *Params) {
	for _, k := range keyNames {
		if strings.Contains(text, k.word) {
			out.Set("key", k.key)
			return
		}
	}
}

var hotkeyRe = regexp.MustCompile(`[a-z0-9]+(?:\s*\+\s*[a-z0-9]+)+`)

func (e *Extractor) hotkey(text string, out *Params) {
	m := hotkeyRe.FindString(text)
	if m == "" {
		return
	}
	var keys []string
	for _, k := range strings.Split(m, "+") {
		keys = append(keys, strings.TrimSpace(k))
	}
	out.Set("keys", keys)
}

var coordsRe = regexp.MustCompile(`(-?\d+)[^\d-]+(-?\d+)`)

func (e *Extractor) coordinates(text string, out *Params) {
	m := coordsRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	x, errX := strconv.Atoi(m[1])
	y, errY := strconv.Atoi(m[2])
	if errX != nil || errY != nil {
		return
	}
	out.Set("x", x)
	out.Set("y", y)
}

func (e *Extractor) mouseButton(text string, out *Params) {
	switch {
	case strings.Contains(text, "right") || strings.Contains(text, "o'ng") || strings.Contains(text, "правой"):
		out.Set("button", "right")
	case strings.Contains(text, "middle") || strings.Contains(text, "o'rta"):
		out.Set("button", "middle")
	}
}

func (e *Extractor) scroll(text string, out *Params) {
	amount, ok := firstNumber(text)
	if !ok {
		amount = 300
	}
	down := strings.Contains(text, "down") || strings.Contains(text, "past") || strings.Contains(text, "вниз")
	if down {
		amount = -amount
	}
	if ok || down {
		out.Set("amount", amount)
	}
}

var levelWords = []struct {
	word  string
	level int
}{
	{"yarim", 50},
	{"half", 50},
	{"o'rtacha", 50},
	{"to'liq", 100},
	{"full", 100},
	{"max", 100},
	{"a bit", 30},
	{"sal", 30},
	{"low", 30},
	{"mute", 0},
}

func (e *Extractor) level(text string, out *Params) {
	if n, ok := firstNumber(text); ok {
		out.Set("level", min(n, 100))
		return
	}
	for _, w := range levelWords {
		if containsWord(text, w.word) {
			out.Set("level", w.level)
			return
		}
	}
}

// ── files ────────────────────────────────────────────────────────────────────

var (
	folderPhrases = newStripper("papka yarat", "folder yarat", "yangi papka", "create folder", "make folder", "new folder", "mkdir")
	folderWords   = tokenSet("nomli", "named", "called", "a", "the")
	pathRe        = regexp.MustCompile(`[a-z]:\\\S+|(?:~|\.{1,2})?/\S+|\S+\.[a-z0-9]{1,5}$`)
)

func (e *Extractor) folderName(text string, out *Params) {
	if name := trimTokens(folderPhrases.strip(text), folderWords); name != "" {
		out.Set("folder_name", name)
	}
}

// filePath leaves file_path empty when nothing path-like is present; handlers
// must reject an empty path.
func (e *Extractor) filePath(text string, out *Params) {
	if m := pathRe.FindString(text); m != "" {
		out.Set("file_path", m)
	}
}

func (e *Extractor) duration(text string, out *Params) {
	n, ok := firstNumber(text)
	if !ok {
		return
	}
	if strings.Contains(text, "soat") || strings.Contains(text, "hour") || strings.Contains(text, "час") {
		n *= 60
	}
	out.Set("duration", n)
}

// ── automation ───────────────────────────────────────────────────────────────

func (e *Extractor) protocolName(text string, out *Params) {
	for _, p := range e.protocols {
		keywords := p.Keywords
		if len(keywords) == 0 {
			keywords = []string{strings.ReplaceAll(p.Name, "_", " ")}
		}
		for _, k := range keywords {
			if strings.Contains(text, k) {
				out.Set("name", p.Name)
				return
			}
		}
	}
}

var (
	timeOfDayRe     = regexp.MustCompile(`(\d{1,2})[:\s-](\d{2})`)
	schedulePhrases = newStripper("har kuni soat", "har kuni", "rejalashtir", "every day at", "every day", "schedule", "каждый день в", "запланируй")
	leadParticles   = tokenSet("da", "at", "then", ",", "-", "ga", "в", "soat", "keyin", "later", "after", "from", "now", "so'ng", "потом")
)

func (e *Extractor) schedule(text string, out *Params) {
	loc := timeOfDayRe.FindStringSubmatchIndex(text)
	if loc == nil {
		if sub := trimTokens(schedulePhrases.strip(text), leadParticles); sub != "" {
			out.Set("sub_action", sub)
		}
		return
	}
	h, _ := strconv.Atoi(text[loc[2]:loc[3]])
	m, _ := strconv.Atoi(text[loc[4]:loc[5]])
	if h < 24 && m < 60 {
		out.Set("time", formatClock(h, m))
	}
	sub := trimTokens(text[loc[1]:], leadParticles)
	if sub == "" {
		sub = trimTokens(schedulePhrases.strip(text[:loc[0]]), leadParticles)
	}
	if sub != "" {
		out.Set("sub_action", sub)
	}
}

func formatClock(h, m int) string {
	return twoDigits(h) + ":" + twoDigits(m)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

var delayRe = regexp.MustCompile(`(\d+)\s*(daqiqa\S*|minut\S*|min\b|sekund\S*|second\S*|sec\b|soat\S*|hours?\b|секунд\S*|минут\S*|час\S*)`)

var (
	timerPhrases = newStripper("set a timer for", "set a timer", "taymer qo'y", "timer", "таймер")
	timerWords   = tokenSet("in", "after", "через", "for", "da", ",")
)

// delayCeiling saturates timer amounts. Anything this large is far past
// what the orchestrator accepts, so it is rejected there instead of wrapping.
const delayCeiling = 1 << 29

// delayAmount parses digits and scales it by unit, saturating at
// delayCeiling. Out-of-range numbers saturate as well.
func delayAmount(digits string, unit int) int {
	n, err := strconv.Atoi(digits)
	if err != nil || n > delayCeiling/unit {
		return delayCeiling
	}
	return n * unit
}

func (e *Extractor) timer(text string, out *Params) {
	all := delayRe.FindAllStringSubmatchIndex(text, -1)
	if len(all) == 0 {
		if m := digitsRe.FindString(text); m != "" {
			out.Set("minutes", delayAmount(m, 1))
			out.Set("seconds", 0)
		}
		if sub := trimTokens(timerPhrases.strip(digitsRe.ReplaceAllString(text, " ")), timerWords); sub != "" {
			out.Set("sub_action", sub)
		}
		return
	}

	minutes, seconds := 0, 0
	for _, loc := range all {
		digits := text[loc[2]:loc[3]]
		unit := text[loc[4]:loc[5]]
		switch {
		case strings.HasPrefix(unit, "sek"), strings.HasPrefix(unit, "sec"), strings.HasPrefix(unit, "секунд"):
			seconds = min(seconds+delayAmount(digits, 1), delayCeiling)
		case strings.HasPrefix(unit, "soat"), strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "час"):
			minutes = min(minutes+delayAmount(digits, 60), delayCeiling)
		default:
			minutes = min(minutes+delayAmount(digits, 1), delayCeiling)
		}
	}
	out.Set("minutes", minutes)
	out.Set("seconds", seconds)

	last := all[len(all)-1]
	sub := trimTokens(text[last[1]:], leadParticles)
	if sub == "" {
		sub = trimTokens(timerPhrases.strip(text[:all[0][0]]), timerWords)
	}
	if sub != "" {
		out.Set("sub_action", sub)
	}
}

// ── media and knowledge ──────────────────────────────────────────────────────

var promptPhrases = newStripper(
	"rasm chiz", "rasm yarat", "surat chiz", "video yarat", "video yasab", "haqida video", "chizib",
	"generate image", "generate video", "create image", "make a video", "imagine", "generate", "draw",
)

var (
	promptWords   = tokenSet("of", "about", "a", "an", "haqida")
	topicPhrases  = newStripper("haqida surishtir", "tadqiqot qil", "o'rganib chiq", "haqida ma'lumot top", "research", "study")
	topicWords    = tokenSet("about", "on", "the", "haqida")
	songPhrases   = newStripper("musiqa quyib ber", "qo'shiq qo'y", "musiqa qo'y", "play music", "play song", "play", "musiqa", "qo'shiq", "включи музыку")
	songWords     = tokenSet("iltimos", "please", "some")
	weatherStrip  = newStripper("ob-havo", "havo qanday", "weather", "forecast", "погода", "what's the", "what is the")
	weatherWords  = tokenSet("in", "for", "da", "qanday", "в", "today", "bugun")
	expenseWords  = tokenSet("so'm", "sum", "sarfladim", "sarf", "qildim", "xarajat", "to'ladim", "spent", "on", "for", "expense", "$", "dollar")
	amountRe      = regexp.MustCompile(`\d[\d ]*\d|\d`)
	platformNames = []string{"google", "telegram", "github", "twitter", "facebook", "instagram", "linkedin"}
)

func (e *Extractor) mediaPrompt(text string, out *Params) {
	if p := trimTokens(promptPhrases.strip(text), promptWords); p != "" {
		out.Set("prompt", p)
	}
}

func (e *Extractor) topic(text string, out *Params) {
	if t := trimTokens(topicPhrases.strip(text), topicWords); t != "" {
		out.Set("topic", t)
	}
}

func (e *Extractor) song(text string, out *Params) {
	if s := trimTokens(songPhrases.strip(text), songWords); s != "" {
		out.Set("song", s)
	}
}

func (e *Extractor) city(text string, out *Params) {
	c := trimTokens(weatherStrip.strip(text), weatherWords)
	if c == "" {
		return
	}
	// Uzbek locative: "toshkentda".
	if len([]rune(c)) > 4 {
		c = strings.TrimSuffix(c, "da")
	}
	out.Set("city", titleCase(c))
}

func (e *Extractor) expense(text string, out *Params) {
	loc := amountRe.FindStringIndex(text)
	if loc == nil {
		if d := trimTokens(text, expenseWords); d != "" {
			out.Set("description", d)
		}
		return
	}
	if n, err := strconv.Atoi(strings.ReplaceAll(text[loc[0]:loc[1]], " ", "")); err == nil {
		out.Set("amount", n)
	}
	rest := strings.TrimSpace(text[:loc[0]] + " " + text[loc[1]:])
	var desc []string
	for _, tok := range strings.Fields(rest) {
		if !expenseWords[tok] {
			desc = append(desc, tok)
		}
	}
	if len(desc) > 0 {
		out.Set("description", strings.Join(desc, " "))
	}
}

func (e *Extractor) platform(text string, out *Params) {
	for _, p := range platformNames {
		if strings.Contains(text, p) {
			out.Set("platform", p)
			return
		}
	}
}

var cryptoNames = []struct{ word, symbol string }{
	{"bitcoin", "bitcoin"},
	{"bitkoin", "bitcoin"},
	{"btc", "bitcoin"},
	{"ethereum", "ethereum"},
	{"eth", "ethereum"},
	{"solana", "solana"},
}

var stockNames = []struct{ word, symbol string }{
	{"apple", "AAPL"},
	{"tesla", "TSLA"},
	{"google", "GOOGL"},
	{"microsoft", "MSFT"},
	{"amazon", "AMZN"},
	{"nvidia", "NVDA"},
}

func (e *Extractor) cryptoSymbol(text string, out *Params) {
	for _, c := range cryptoNames {
		if matchesName(text, c.word) {
			out.Set("symbol", c.symbol)
			return
		}
	}
}

// matchesName needs whole words for short tickers, which hide inside other
// words ("eth" in "method").
func matchesName(text, name string) bool {
	if len(name) <= 3 {
		return containsWord(text, name)
	}
	return strings.Contains(text, name)
}

func (e *Extractor) stockSymbol(text string, out *Params) {
	for _, s := range stockNames {
		if strings.Contains(text, s.word) {
			out.Set("symbol", s.symbol)
			return
		}
	}
}

func (e *Extractor) feedback(text string, out *Params) {
	if text != "" {
		out.Set("feedback", text)
	}
}
