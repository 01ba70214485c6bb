package inventory

import "time"

// Defaults returns the seed inventory written on first use and by Reset.
func Defaults() []Item {
	return []Item{
		{
			ID:        "1",
			Name:      "Children's Teddy Bear",
			Category:  "Toys > Stuffed Animals",
			Condition: "Good",
			Summary:   "Brown teddy bear, approximately 30cm tall, soft and comfortable, normal appearance",
			Keywords:  []string{"toys", "children", "teddy", "plush", "brown"},
			ImageURL:  "https://images.unsplash.com/photo-1551028719-00167b16eac5?w=400",
			CreatedAt: seedTime("2024-01-15T10:30:00Z"),
		},
		{
			ID:        "2",
			Name:      "Children's Building Block Set",
			Category:  "Toys > Educational Toys",
			Condition: "Good",
			Summary:   "Compatible building block set, contains about 200 pieces, various colors, some parts have slight wear",
			Keywords:  []string{"toys", "blocks", "children", "educational", "building"},
			ImageURL:  "https://images.unsplash.com/photo-1587654780291-39c9404d746b?w=400",
			CreatedAt: seedTime("2024-01-14T14:20:00Z"),
		},
		{
			ID:        "3",
			Name:      "Children's Picture Book",
			Category:  "Books > Children's Books",
			Condition: "Good",
			Summary:   "Hardcover picture book with clear color illustrations, complete pages with no damage",
			Keywords:  []string{"books", "children", "picture", "reading", "education"},
			ImageURL:  "https://images.unsplash.com/photo-1512820790803-83ca734da794?w=400",
			CreatedAt: seedTime("2024-01-13T09:15:00Z"),
		},
		{
			ID:        "4",
			Name:      "LED Desk Lamp",
			Category:  "Home > Lighting",
			Condition: "Good",
			Summary:   "White dimmable desk lamp, LED light source working normally, supports USB power",
			Keywords:  []string{"home", "lamp", "led", "desk", "study"},
			ImageURL:  "https://images.unsplash.com/photo-1507473885765-e6ed057f782c?w=400",
			CreatedAt: seedTime("2024-01-12T16:45:00Z"),
		},
		{
			ID:        "5",
			Name:      "Student Backpack",
			Category:  "School Supplies > Backpacks",
			Condition: "Fair",
			Summary:   "Blue double-shoulder backpack, multiple compartments, slight signs of use, zippers working normally",
			Keywords:  []string{"backpack", "school", "student", "blue", "bag"},
			ImageURL:  "https://images.unsplash.com/photo-1553062407-98eeb64c6a62?w=400",
			CreatedAt: seedTime("2024-01-11T11:00:00Z"),
		},
	}
}

func seedTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
