package tool

import "math/rand/v2"

// Word lists for aliases of devices that were never named, e.g. "Smart Mango".
var (
	aliasAdjectives = [...]string{
		"Adorable", "Beautiful", "Big", "Bright", "Clean", "Clever", "Cool", "Cute",
		"Cunning", "Determined", "Energetic", "Efficient", "Fantastic", "Fast", "Fine",
		"Fresh", "Good", "Gorgeous", "Great", "Handsome", "Hot", "Kind", "Lovely",
		"Mystic", "Neat", "Nice", "Patient", "Pretty", "Powerful", "Rich", "Secret",
		"Smart", "Solid", "Special", "Strategic", "Strong", "Tidy", "Wise",
	}
	aliasNouns = [...]string{
		"Apple", "Avocado", "Banana", "Blackberry", "Blueberry", "Broccoli", "Carrot",
		"Cherry", "Coconut", "Grape", "Lemon", "Lettuce", "Mango", "Melon", "Mushroom",
		"Onion", "Orange", "Papaya", "Peach", "Pear", "Pineapple", "Potato", "Pumpkin",
		"Raspberry", "Strawberry", "Tomato",
	}
)

// RandomAlias picks an "Adjective Noun" device alias.
func RandomAlias() string {
	return aliasAdjectives[rand.IntN(len(aliasAdjectives))] + " " + aliasNouns[rand.IntN(len(aliasNouns))]
}
