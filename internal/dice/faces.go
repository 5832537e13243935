package dice

import "dicedecision/internal/domain"

// Face sets per single-draw category. Order is part of the contract for
// seeded draws, append new faces at the end.
var faceSets = map[domain.Category][]domain.Result{
	domain.CategoryActivity: {
		{FaceID: "activity_walk", Emoji: "🚶", Label: domain.Label{EN: "Go for a walk", FR: "Faire une balade"}},
		{FaceID: "activity_movie_night", Emoji: "🎬", Label: domain.Label{EN: "Movie night", FR: "Soirée cinéma"}},
		{FaceID: "activity_board_games", Emoji: "🎲", Label: domain.Label{EN: "Board games", FR: "Jeux de société"}},
		{FaceID: "activity_karaoke", Emoji: "🎤", Label: domain.Label{EN: "Karaoke", FR: "Karaoké"}},
		{FaceID: "activity_bowling", Emoji: "🎳", Label: domain.Label{EN: "Bowling", FR: "Bowling"}},
		{FaceID: "activity_picnic", Emoji: "🧺", Label: domain.Label{EN: "Picnic", FR: "Pique-nique"}},
	},
	domain.CategoryFood: {
		{FaceID: "food_pizza", Emoji: "🍕", Label: domain.Label{EN: "Pizza", FR: "Pizza"}},
		{FaceID: "food_sushi", Emoji: "🍣", Label: domain.Label{EN: "Sushi", FR: "Sushi"}},
		{FaceID: "food_burger", Emoji: "🍔", Label: domain.Label{EN: "Burgers", FR: "Burgers"}},
		{FaceID: "food_tacos", Emoji: "🌮", Label: domain.Label{EN: "Tacos", FR: "Tacos"}},
		{FaceID: "food_ramen", Emoji: "🍜", Label: domain.Label{EN: "Ramen", FR: "Ramen"}},
		{FaceID: "food_salad", Emoji: "🥗", Label: domain.Label{EN: "Salad bar", FR: "Bar à salades"}},
	},
	domain.CategoryMovie: {
		{FaceID: "movie_comedy", Emoji: "😂", Label: domain.Label{EN: "Comedy", FR: "Comédie"}},
		{FaceID: "movie_action", Emoji: "💥", Label: domain.Label{EN: "Action", FR: "Action"}},
		{FaceID: "movie_horror", Emoji: "👻", Label: domain.Label{EN: "Horror", FR: "Horreur"}},
		{FaceID: "movie_romance", Emoji: "💘", Label: domain.Label{EN: "Romance", FR: "Romance"}},
		{FaceID: "movie_animation", Emoji: "🧸", Label: domain.Label{EN: "Animation", FR: "Animation"}},
		{FaceID: "movie_documentary", Emoji: "🎥", Label: domain.Label{EN: "Documentary", FR: "Documentaire"}},
	},
}

// compositeSets lists the sub-sets drawn for composite categories, in result order
var compositeSets = map[domain.Category][]domain.Category{
	domain.CategoryQuick: {domain.CategoryActivity, domain.CategoryFood},
}

// Faces returns a copy of the face set for a single-draw category
func Faces(category domain.Category) []domain.Result {
	faces := faceSets[category]
	out := make([]domain.Result, len(faces))
	copy(out, faces)
	return out
}

// FaceByID finds a face across all sets
func FaceByID(id string) (domain.Result, bool) {
	for _, faces := range faceSets {
		for _, f := range faces {
			if f.FaceID == id {
				return f, true
			}
		}
	}
	return domain.Result{}, false
}
