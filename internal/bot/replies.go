package bot

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bakkal-monitor/price-radar/internal/models"
	"github.com/bakkal-monitor/price-radar/internal/processing"
	"github.com/bakkal-monitor/price-radar/internal/telegram"
)

const (
	maxPerMarket   = 3
	maxHistoryRows = 7
)

const (
	startText = "👋 <b>Merhaba! Bakkal Fiyat Botuna hoş geldiniz!</b> 🛒\n\n" +
		"Ben size en güncel market fiyatlarını karşılaştırmalı olarak getiriyorum. " +
		"Türkçe veya İngilizce yazabilirsiniz!\n\n" +
		"✏️ <b>Nasıl kullanılır?</b>\n" +
		"Sadece ürün adını yazın, gerisini ben hallederim:\n\n" +
		"<code>süt</code>  <code>ekmek</code>  <code>yağ</code>  <code>şeker</code>  <code>çay</code>\n" +
		"<code>milk</code>  <code>bread</code>  <code>oil</code>  <code>cheese</code>  <code>eggs</code>\n\n" +
		"📋 <b>Komutlar:</b>\n" +
		"/firsat - Bugünün en iyi fırsatları 🔥\n" +
		"/markets - Takip ettiğim marketler\n" +
		"/son - Son güncellenen ürünler\n" +
		"/help - Yardım\n\n" +
		"<i>Fiyatlar her sabah 07:00'de güncellenir</i> ☀️"

	helpText = "🤝 <b>Size nasıl yardımcı olabilirim?</b>\n\n" +
		"Aklınızdaki ürünü yazmanız yeterli, Türkçe ya da İngilizce:\n\n" +
		"<code>süt</code> veya <code>milk</code> → tüm marketlerde süt fiyatları\n" +
		"<code>yağ</code> veya <code>oil</code> → ayçiçek, zeytinyağı ve daha fazlası\n" +
		"<code>200ml süt</code> → daha spesifik arama\n\n" +
		"📋 <b>Tüm komutlar:</b>\n" +
		"/fiyat &lt;ürün&gt; - Fiyat sorgula\n" +
		"/gecmis &lt;ürün&gt; - Son 7 günlük fiyat geçmişi\n" +
		"/firsat - Bugünün en iyi fırsatları\n" +
		"/markets - Takip edilen marketler\n" +
		"/son - Son güncellenen 10 ürün\n" +
		"/help - Bu yardım mesajı\n\n" +
		"💬 <i>Herhangi bir sorunuz olursa yazmaktan çekinmeyin!</i>"

	usageText = "🤔 Hangi ürünü aramak istersiniz?\n\n" +
		"Kullanım: <code>/%s süt</code>\n\n" +
		"Örnekler: <code>süt</code>, <code>ekmek</code>, <code>yağ</code>, <code>şeker</code>"

	greetingText = "👋 <b>Merhaba!</b> Nasılsınız?\n\n" +
		"Bugün hangi ürünün fiyatına bakmak istersiniz? " +
		"Türkçe veya İngilizce yazabilirsiniz 😊\n\n" +
		"Örnek: <code>süt</code>, <code>ekmek</code>, <code>milk</code>, <code>bread</code>"

	thanksText = "😊 Rica ederim! Başka bir ürün sormak ister misiniz?\n\n" +
		"<code>süt</code>  <code>ekmek</code>  <code>yağ</code>  <code>şeker</code>  <code>çay</code>"

	byeText = "👋 İyi günler! Fiyat karşılaştırması için tekrar bekleriz 🛒"

	unknownCommandText = "🤔 Bu komutu tanımıyorum.\n\nYardım için /help yazabilirsiniz."

	failureText = "❌ Bir hata oluştu, lütfen tekrar deneyin."
)

// PriceReply renders search results grouped by market. matched is the
// expanded term that produced rows; history is the newest-first daily
// history of the first result.
func PriceReply(query string, rows []models.Observation, matched string, history []models.Observation) string {
	if len(rows) == 0 {
		return fmt.Sprintf("😕 <b>'%s'</b> için şu an fiyat bulamadım.\n\n", telegram.Escape(query)) +
			"Belki şunları deneyebilirsiniz:\n" +
			"<code>süt</code>  <code>ekmek</code>  <code>yağ</code>  <code>şeker</code>  <code>çay</code>\n\n" +
			"<i>İpucu: İngilizce de yazabilirsiniz, milk, bread, oil...</i>"
	}

	display := query
	if matched != "" {
		display = matched
	}

	var lines []string
	if matched != "" && !strings.EqualFold(matched, query) {
		lines = append(lines, fmt.Sprintf("✅ '<b>%s</b>' için <b>%s</b> sonuçlarını getirdim:\n",
			telegram.Escape(query), telegram.Escape(strings.ToUpper(display))))
	} else {
		lines = append(lines, fmt.Sprintf("🛒 <b>%s</b> fiyatları:\n", telegram.Escape(strings.ToUpper(display))))
	}

	byMarket := make(map[string][]models.Observation)
	for _, r := range rows {
		byMarket[r.MarketName] = append(byMarket[r.MarketName], r)
	}
	markets := make([]string, 0, len(byMarket))
	for m := range byMarket {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	for _, m := range markets {
		items := byMarket[m]
		if len(items) > maxPerMarket {
			items = items[:maxPerMarket]
		}
		lines = append(lines, fmt.Sprintf("🏪 <b>%s</b>", telegram.Escape(m)))
		for _, it := range items {
			lines = append(lines, fmt.Sprintf("  • %s - <b>%s TL</b>%s",
				telegram.Escape(it.ProductName), processing.FormatAmount(it.CurrentPrice), trend(it.PriceDropPct)))
		}
		lines = append(lines, "")
	}
	lines = append(lines, fmt.Sprintf("<i>📅 Son güncelleme: %s</i>", telegram.Escape(rows[0].ObservedDate)))

	if len(history) >= 2 {
		lines = append(lines, "\n📈 <b>Son 7 günlük fiyat geçmişi:</b>")
		if len(history) > maxHistoryRows {
			history = history[:maxHistoryRows]
		}
		for _, h := range history {
			lines = append(lines, fmt.Sprintf("  <code>%s</code>  %s TL%s",
				h.ObservedDate, processing.FormatAmount(h.CurrentPrice), arrow(h.PriceDropPct)))
		}
	}

	lines = append(lines, suggestionLine(display))
	return strings.Join(lines, "\n")
}

// MarketsReply lists the tracked markets.
func MarketsReply(markets []string) string {
	if len(markets) == 0 {
		return "🤔 Henüz market verisi yok.\n\n" +
			"Veriler her sabah 07:00'de güncelleniyor, biraz sonra tekrar deneyin!"
	}
	lines := []string{fmt.Sprintf("🏪 <b>Takip ettiğim %d market:</b>\n", len(markets))}
	for _, m := range markets {
		lines = append(lines, "  • "+telegram.Escape(m))
	}
	lines = append(lines, "\n💡 <i>Bir ürün adı yazarak tüm marketlerde fiyat karşılaştırabilirsiniz.</i>\n"+
		"Örnek: <code>süt</code>, <code>ekmek</code>, <code>yağ</code>")
	return strings.Join(lines, "\n")
}

// RecentReply lists the most recently observed products.
func RecentReply(rows []models.Observation) string {
	if len(rows) == 0 {
		return "🤔 Henüz veri yok gibi görünüyor.\n\n" +
			"Biraz sonra tekrar deneyin, veriler her sabah güncelleniyor! 🌅"
	}
	lines := []string{"🕒 <b>Az önce güncellenen ürünler:</b>\n"}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("  • %s - <b>%s TL</b> <i>%s</i>",
			telegram.Escape(r.ProductName), processing.FormatAmount(r.CurrentPrice), telegram.Escape(r.MarketName)))
	}
	lines = append(lines, "\n💡 <i>Bir ürünü daha detaylı görmek için adını yazmanız yeterli!</i>\n"+
		"Örnek: <code>süt</code>, <code>ekmek</code>, <code>yağ</code>")
	return strings.Join(lines, "\n")
}

// DealsReply lists today's biggest drops.
func DealsReply(rows []models.Observation) string {
	if len(rows) == 0 {
		return "🤷 Bugün için kayıtlı fırsat bulunamadı.\n\n" +
			"<i>Fırsatlar her sabah 07:00'de güncellenir. " +
			"Veriler henüz yüklenmemiş olabilir.</i>"
	}
	lines := []string{"🔥 <b>Bugünün En İyi Fırsatları:</b>\n"}
	for _, r := range rows {
		prev := "?"
		if r.PreviousPrice != nil && *r.PreviousPrice != 0 {
			prev = processing.FormatAmount(*r.PreviousPrice)
		}
		drop := 0.0
		if r.PriceDropPct != nil {
			drop = *r.PriceDropPct
		}
		lines = append(lines, fmt.Sprintf("📉 <b>%s</b>\n   %s - <b>%s TL</b>  <i>(eskiden %s TL, -%%%s)</i>",
			telegram.Escape(r.ProductName), telegram.Escape(r.MarketName),
			processing.FormatAmount(r.CurrentPrice), prev, processing.FormatAmount(drop)))
	}
	lines = append(lines, "\n<i>💡 Bir ürün adı yazarak daha fazla detay görebilirsiniz.</i>")
	return strings.Join(lines, "\n")
}

// HistoryReply shows the daily prices of one product, newest first.
func HistoryReply(productName string, rows []models.Observation) string {
	if len(rows) == 0 {
		return fmt.Sprintf("📊 <b>%s</b> için henüz yeterli geçmiş veri yok.\n\n", telegram.Escape(productName)) +
			"<i>Fiyat geçmişi her gün birikmektedir.</i>"
	}
	lines := []string{fmt.Sprintf("📊 <b>%s</b> - Son %d günlük fiyat:\n", telegram.Escape(productName), len(rows))}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("  <code>%s</code>  <b>%s TL</b>%s",
			r.ObservedDate, processing.FormatAmount(r.CurrentPrice), trend(r.PriceDropPct)))
	}
	return strings.Join(lines, "\n")
}

func trend(drop *float64) string {
	switch {
	case drop == nil:
		return ""
	case *drop > 0:
		return " 📉 -%" + processing.FormatAmount(*drop)
	case *drop < 0:
		return " 📈 +%" + processing.FormatAmount(math.Abs(*drop))
	default:
		return ""
	}
}

func arrow(drop *float64) string {
	switch {
	case drop == nil:
		return ""
	case *drop > 0:
		return " 📉"
	case *drop < 0:
		return " 📈"
	default:
		return ""
	}
}

func suggestionLine(term string) string {
	chips := make([]string, 0, 3)
	for _, s := range Suggestions(term) {
		chips = append(chips, "<code>"+telegram.Escape(s)+"</code>")
	}
	return "\n💡 <b>Bunları da sorabilirsiniz:</b>\n" + strings.Join(chips, "  ")
}
