package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// Sources lists what each collector visits. Empty fields fall back to the
// built-in defaults.
type Sources struct {
	Marketfiyati MarketfiyatiSource `json:"marketfiyati"`
	Cimri        PageSource         `json:"cimri"`
	Essen        PageSource         `json:"essen"`
	BizimToptan  PageSource         `json:"bizimtoptan"`
}

// MarketfiyatiSource configures the structured search API.
type MarketfiyatiSource struct {
	Disabled bool     `json:"disabled"`
	Endpoint string   `json:"endpoint"`
	Keywords []string `json:"keywords"`
}

// PageSource configures a scraped site.
type PageSource struct {
	Disabled bool     `json:"disabled"`
	URLs     []string `json:"urls"`
}

// DefaultSources returns the built-in target lists.
func DefaultSources() Sources {
	return Sources{
		Marketfiyati: MarketfiyatiSource{
			Endpoint: "https://api.marketfiyati.org.tr/api/v2/search",
			Keywords: []string{
				"süt", "ekmek", "ayçiçek yağı", "un", "şeker", "çay", "makarna", "pirinç",
				"fasulye", "mercimek", "bulgur", "salça", "yufka", "arpa şehriye",
				"hazır çorba", "mısır yağı", "tuz", "irmik", "nişasta", "karabiber", "pul biber",

				"peynir", "yumurta", "zeytin", "margarin", "bal", "reçel", "sucuk", "yoğurt",
				"ayran", "tereyağı", "tahin pekmez", "labne peyniri", "kaşar peyniri",
				"süzme peynir", "salam", "sosis", "zeytin ezmesi", "kaymak",

				"su", "kola", "meyve suyu", "kahve", "maden suyu", "gazoz", "türk kahvesi",
				"limonata", "toz içecek", "meyveli soda", "şalgam suyu", "buzlu çay",

				"bisküvi", "gofret", "kek", "cips", "çikolata", "sakız", "lolipop şeker",
				"ayçekirdeği", "fıstık", "leblebi", "kraker", "helva", "pötibör bisküvi",

				"deterjan", "sabun", "tuvalet kağıdı", "çamaşır suyu", "bulaşık süngeri",
				"sıvı bulaşık deterjanı", "yüzey temizleyici", "ıslak mendil", "kağıt peçete",
				"şampuan", "diş macunu", "tıraş bıçağı", "yumuşatıcı", "sıvı sabun", "katı sabun",

				"kalem pil", "ince pil", "mutfak çakmağı", "kibrit", "alüminyum folyo",
				"streç film", "çöp torbası", "ampul", "yara bandı", "traş köpüğü",
			},
		},
		Cimri: PageSource{URLs: []string{
			"https://www.cimri.com/market/migros",
			"https://www.cimri.com/market",
		}},
		Essen: PageSource{URLs: []string{
			"https://www.essenjet.com/kategori/10/Temel-Gida",
			"https://www.essenjet.com/kategori/20/Sut-Kahvaltilik",
			"https://www.essenjet.com/kategori/14/Unlu-Mamuller-Tatli",
			"https://www.essenjet.com/kategori/30/Sebze-Meyve",
			"https://www.essenjet.com/kategori/40/Et-Tavuk",
			"https://www.essenjet.com/kategori/70/Icecek",
			"https://www.essenjet.com/kategori/12/Atistirmalik",
			"https://www.essenjet.com/kategori/1000/Haftanin-Firsatlari",
		}},
		BizimToptan: PageSource{URLs: []string{
			"https://www.bizimtoptan.com.tr/kampanyalar",
			"https://www.bizimtoptan.com.tr/indirimli-urunler",
		}},
	}
}

// LoadSources reads name (json5) and an optional "<name>.local.<ext>"
// override next to it, then fills anything left empty from DefaultSources.
// Missing files are not an error.
func LoadSources(name string) (Sources, error) {
	var out Sources

	if name != "" {
		base, err := readSourcesFile(name)
		if err != nil {
			return out, err
		}
		out = base

		local, err := readSourcesFile(localName(name))
		if err != nil {
			return out, err
		}
		if err := mergo.Merge(&out, local, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("merge local sources: %w", err)
		}
	}

	if err := mergo.Merge(&out, DefaultSources()); err != nil {
		return out, fmt.Errorf("merge default sources: %w", err)
	}
	return out, nil
}

func readSourcesFile(name string) (Sources, error) {
	var out Sources
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("read %s: %w", name, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, nil
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", name, err)
	}
	return out, nil
}

func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}
