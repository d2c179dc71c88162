package game

// ItemKind is an item identifier in its canonical wire form.
type ItemKind string

const (
	SpeedPotion ItemKind = "speed_potion"
	Compass     ItemKind = "compass"
	Hammer      ItemKind = "hammer"
	KillSword   ItemKind = "kill_sword"
	SlowTrap    ItemKind = "slow_trap"
	SwapItem    ItemKind = "swap_item"

	// CoinItem is a pseudo-kind accepted only by the operator give
	// path; it never appears in an inventory.
	CoinItem ItemKind = "coin"
)

var itemPrices = map[ItemKind]int{
	SpeedPotion: 20,
	Compass:     25,
	Hammer:      50,
	KillSword:   50,
	SlowTrap:    30,
	SwapItem:    60,
}

// itemAliases maps the shorthand forms older clients and the console
// use onto canonical kinds.
var itemAliases = map[string]ItemKind{
	"speed_potion": SpeedPotion,
	"speed":        SpeedPotion,
	"compass":      Compass,
	"hammer":       Hammer,
	"kill_sword":   KillSword,
	"sword":        KillSword,
	"slow_trap":    SlowTrap,
	"trap":         SlowTrap,
	"swap_item":    SwapItem,
	"swap":         SwapItem,
	"coin":         CoinItem,
	"coins":        CoinItem,
}

// ParseItem resolves an item name or alias to its canonical kind.
func ParseItem(name string) (ItemKind, bool) {
	kind, ok := itemAliases[name]
	return kind, ok
}

// Price returns the purchase price of the item in this-match coins.
// The coin pseudo-kind is not purchasable.
func (k ItemKind) Price() (int, bool) {
	p, ok := itemPrices[k]
	return p, ok
}
